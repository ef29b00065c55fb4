//go:build !linux

package receiver

import (
	"context"
	"errors"
)

// BluetoothScanner is unavailable on non-Linux platforms.
type BluetoothScanner struct{}

// NewBluetoothScanner returns an error on non-Linux platforms.
func NewBluetoothScanner() (*BluetoothScanner, error) {
	return nil, errors.New("bluetooth scanning only supported on linux")
}

// Scan is not supported on non-Linux platforms.
func (s *BluetoothScanner) Scan(ctx context.Context, fn func(Sighting)) error {
	return errors.New("bluetooth scanning only supported on linux")
}
