package advert

import (
	"fmt"
	"time"
)

// ManufacturerID is the company identifier carried with the payload.
const ManufacturerID uint16 = 0x0590

const (
	// DefaultInterval is slower than the usual 375ms platform default to save power.
	DefaultInterval = 600 * time.Millisecond

	// Bluetooth core spec limits for legacy advertising intervals.
	MinInterval = 20 * time.Millisecond
	MaxInterval = 10240 * time.Millisecond
)

// Advertisement is the complete radio broadcast state. Setting one replaces
// everything previously configured.
type Advertisement struct {
	ShowName       bool
	Connectable    bool
	ManufacturerID uint16
	Data           Payload
	Interval       time.Duration
}

// Config holds the static part of the advertisement.
type Config struct {
	ShowName       bool
	Connectable    bool
	ManufacturerID uint16
	Interval       time.Duration
}

// DefaultConfig returns the broadcast settings used by the meter sensor.
func DefaultConfig() Config {
	return Config{
		ShowName:       false,
		Connectable:    true,
		ManufacturerID: ManufacturerID,
		Interval:       DefaultInterval,
	}
}

// Validate checks the interval is within what a controller accepts.
func (c Config) Validate() error {
	if c.Interval < MinInterval || c.Interval > MaxInterval {
		return fmt.Errorf("advertising interval %v outside %v..%v", c.Interval, MinInterval, MaxInterval)
	}
	return nil
}

// Build assembles the full advertisement for the given reading.
func Build(cfg Config, battery uint8, count, rate uint32) Advertisement {
	return Advertisement{
		ShowName:       cfg.ShowName,
		Connectable:    cfg.Connectable,
		ManufacturerID: cfg.ManufacturerID,
		Data:           EncodePayload(battery, count, rate),
		Interval:       cfg.Interval,
	}
}

// Advertiser owns the radio's advertising state.
type Advertiser interface {
	// Set replaces the current advertisement. It is not incremental.
	Set(adv Advertisement) error

	// Close stops advertising and releases the radio.
	Close() error
}

// IntervalUnits converts an interval to 0.625ms controller units.
func IntervalUnits(d time.Duration) uint16 {
	units := d / (625 * time.Microsecond)
	if units < 0x0020 {
		return 0x0020
	}
	if units > 0x4000 {
		return 0x4000
	}
	return uint16(units)
}
