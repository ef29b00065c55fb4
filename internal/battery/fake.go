package battery

import "sync"

// FakeReader is a test double that returns scripted levels.
type FakeReader struct {
	mu sync.Mutex

	// Levels contains scripted values; each call consumes the next one and
	// the last value repeats once exhausted.
	Levels []uint8
	index  int

	// Err, if set, will be returned by Level().
	Err error

	// Calls counts Level() invocations.
	Calls int
}

// NewFakeReader creates a FakeReader with the given levels.
func NewFakeReader(levels ...uint8) *FakeReader {
	return &FakeReader{Levels: levels}
}

// Level returns the next scripted level.
func (f *FakeReader) Level() (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return 0, f.Err
	}
	if len(f.Levels) == 0 {
		return 0, ErrNoSupply
	}
	v := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return v, nil
}
