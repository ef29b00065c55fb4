package receiver

import "context"

// FakeScanner replays scripted sightings.
type FakeScanner struct {
	Sightings []Sighting

	// Err, if set, is returned after the sightings are delivered.
	Err error

	// Block keeps Scan running until ctx is done after delivering.
	Block bool
}

// Scan delivers every scripted sighting in order.
func (f *FakeScanner) Scan(ctx context.Context, fn func(Sighting)) error {
	for _, s := range f.Sightings {
		if ctx.Err() != nil {
			return nil
		}
		fn(s)
	}
	if f.Err != nil {
		return f.Err
	}
	if f.Block {
		<-ctx.Done()
	}
	return nil
}
