// Package store records decoded meter readings.
package store

import (
	"context"
	"time"
)

// Record is one stored meter observation.
type Record struct {
	Timestamp time.Time
	Device    string
	RSSI      int16
	Battery   uint8
	Count     uint32
	Rate      uint32
	TotalKWh  float64
	KWh       float64 // energy since the previous record for this device
	KW        float64
	Carbon    *Carbon // nil when no intensity forecast was available
}

// Carbon is the grid carbon intensity for the record's half-hour window.
type Carbon struct {
	Intensity int    // gCO2/kWh forecast
	Index     string // "very low" .. "very high"
	Grams     float64
}

// Writer persists records.
type Writer interface {
	Write(ctx context.Context, r Record) error
	Close() error
}
