package gpio

import (
	"sync"
	"time"
)

// FakeBoard is a test double that records pin operations and lets tests
// fire edges. Unlike RealBoard it permits stacked watches, so a caller that
// forgets ClearWatch sees every edge delivered more than once.
type FakeBoard struct {
	mu       sync.Mutex
	handlers []func(Edge)

	// Calls records operation names in order ("clear", "low", "watch", "pulse").
	Calls []string

	// Pulses records the duration of each indicator pulse.
	Pulses []time.Duration

	// GroundLow is true once DriveLow has succeeded.
	GroundLow bool

	// Errors returned by the corresponding operations, if set.
	WatchError error
	DriveError error
	PulseError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeBoard creates a FakeBoard with no watch armed.
func NewFakeBoard() *FakeBoard {
	return &FakeBoard{}
}

// ClearWatch removes every armed watch.
func (f *FakeBoard) ClearWatch() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "clear")
	f.handlers = nil
	return nil
}

// DriveLow records the ground pin as low.
func (f *FakeBoard) DriveLow() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "low")
	if f.DriveError != nil {
		return f.DriveError
	}
	f.GroundLow = true
	return nil
}

// Watch arms an additional watch.
func (f *FakeBoard) Watch(fn func(Edge)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "watch")
	if f.WatchError != nil {
		return f.WatchError
	}
	f.handlers = append(f.handlers, fn)
	return nil
}

// Pulse records an indicator pulse.
func (f *FakeBoard) Pulse(d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "pulse")
	if f.PulseError != nil {
		return f.PulseError
	}
	f.Pulses = append(f.Pulses, d)
	return nil
}

// Close marks the board as closed and drops any watch.
func (f *FakeBoard) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = nil
	f.Closed = true
	return nil
}

// Fire delivers a falling edge at t to every armed watch, synchronously and
// in registration order. It returns the number of handlers invoked.
func (f *FakeBoard) Fire(t time.Time) int {
	f.mu.Lock()
	handlers := append([]func(Edge){}, f.handlers...)
	f.mu.Unlock()

	for _, h := range handlers {
		h(Edge{Time: t})
	}
	return len(handlers)
}

// ActiveWatches returns the number of armed watches.
func (f *FakeBoard) ActiveWatches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// PulseCount returns the number of recorded pulses.
func (f *FakeBoard) PulseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Pulses)
}

// CallLog returns a copy of the recorded operation names.
func (f *FakeBoard) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}
