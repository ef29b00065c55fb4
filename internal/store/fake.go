package store

import (
	"context"
	"sync"
)

// FakeWriter records written records for test assertions.
type FakeWriter struct {
	mu sync.Mutex

	// Records contains every successfully written record.
	Records []Record

	// WriteError, if set, will be returned by Write.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeWriter creates a FakeWriter for testing.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{}
}

// Write records r.
func (f *FakeWriter) Write(_ context.Context, r Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Records = append(f.Records, r)
	return nil
}

// Close marks the writer as closed.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Written returns a copy of the recorded records.
func (f *FakeWriter) Written() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Record(nil), f.Records...)
}
