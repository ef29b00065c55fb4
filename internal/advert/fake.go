package advert

import "sync"

// FakeAdvertiser records every advertisement it is given.
type FakeAdvertiser struct {
	mu sync.Mutex

	// Sets contains every advertisement passed to Set, in order.
	Sets []Advertisement

	// SetError, if set, will be returned by Set (and nothing is recorded).
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeAdvertiser creates a FakeAdvertiser for testing.
func NewFakeAdvertiser() *FakeAdvertiser {
	return &FakeAdvertiser{}
}

// Set records the advertisement.
func (f *FakeAdvertiser) Set(ad Advertisement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Sets = append(f.Sets, ad)
	return nil
}

// Close marks the advertiser as closed.
func (f *FakeAdvertiser) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Current returns the advertisement that is on air, if any.
func (f *FakeAdvertiser) Current() (Advertisement, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sets) == 0 {
		return Advertisement{}, false
	}
	return f.Sets[len(f.Sets)-1], true
}

// Count returns how many times Set succeeded.
func (f *FakeAdvertiser) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sets)
}
