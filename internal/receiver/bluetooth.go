//go:build linux

package receiver

import (
	"context"
	"fmt"
	"time"

	"tinygo.org/x/bluetooth"
)

// BluetoothScanner scans with the host's default BlueZ adapter.
type BluetoothScanner struct {
	adapter *bluetooth.Adapter
}

// NewBluetoothScanner enables the default adapter.
func NewBluetoothScanner() (*BluetoothScanner, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
	}
	return &BluetoothScanner{adapter: adapter}, nil
}

// Scan delivers one Sighting per manufacturer data element until ctx is done.
func (s *BluetoothScanner) Scan(ctx context.Context, fn func(Sighting)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.adapter.StopScan()
		case <-done:
		}
	}()

	err := s.adapter.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
		now := time.Now()
		for _, md := range res.ManufacturerData() {
			fn(Sighting{
				Address:   res.Address.String(),
				RSSI:      res.RSSI,
				CompanyID: md.CompanyID,
				Data:      md.Data,
				Time:      now,
			})
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
