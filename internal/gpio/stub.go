//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealBoard is not available on non-Linux platforms.
type RealBoard struct{}

// NewRealBoard returns an error on non-Linux platforms.
func NewRealBoard(chipName string, pins Pins) (*RealBoard, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// ClearWatch is not implemented on non-Linux platforms.
func (b *RealBoard) ClearWatch() error { return nil }

// DriveLow is not implemented on non-Linux platforms.
func (b *RealBoard) DriveLow() error { return errors.New("gpio: not supported") }

// Watch is not implemented on non-Linux platforms.
func (b *RealBoard) Watch(fn func(Edge)) error { return errors.New("gpio: not supported") }

// Pulse is not implemented on non-Linux platforms.
func (b *RealBoard) Pulse(d time.Duration) error { return errors.New("gpio: not supported") }

// Close is not implemented on non-Linux platforms.
func (b *RealBoard) Close() error { return nil }

// ReadSense is not implemented on non-Linux platforms.
func ReadSense(chipName string, pin int) (int, error) {
	return 0, errors.New("gpio: not supported")
}
