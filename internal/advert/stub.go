//go:build !linux

package advert

import "errors"

// HCIAdvertiser is not available on non-Linux platforms.
type HCIAdvertiser struct{}

// NewHCIAdvertiser returns an error on non-Linux platforms.
func NewHCIAdvertiser(id int, name string) (*HCIAdvertiser, error) {
	return nil, errors.New("advert: HCI not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (a *HCIAdvertiser) Set(ad Advertisement) error {
	return errors.New("advert: not supported")
}

// Close is not implemented on non-Linux platforms.
func (a *HCIAdvertiser) Close() error {
	return nil
}
