// Package gpio drives the sensor's pins with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"time"
)

// Edge is a single falling-edge event on the sense input.
type Edge struct {
	Time time.Time
	Seq  uint32 // per-line sequence number from the kernel, 0 if unknown
}

// Board owns the three pins used by the sensor:
//   - sense: input with pull-up, watched for falling edges (LDR divider)
//   - ground: output held low next to the sense line
//   - indicator: LED pulsed to acknowledge each counted flash
type Board interface {
	// ClearWatch removes any armed edge watch. It is not an error if none is armed.
	ClearWatch() error

	// DriveLow sets the ground pin as an output at logic 0.
	DriveLow() error

	// Watch configures the sense pin as input with pull-up and calls fn on
	// every falling edge until ClearWatch. Calls to fn are serialized.
	Watch(fn func(Edge)) error

	// Pulse raises the indicator for d without blocking.
	Pulse(d time.Duration) error

	// Close releases all pins.
	Close() error
}

// Pins holds BCM line offsets.
type Pins struct {
	Sense     int
	Ground    int
	Indicator int
}

// Default pin definitions (BCM numbering).
const (
	DefaultPinSense     = 17
	DefaultPinGround    = 27
	DefaultPinIndicator = 22
)

// DefaultChip is the GPIO chip on Raspberry Pi models before the Pi 5.
const DefaultChip = "gpiochip0"

// DefaultPins returns the default wiring.
func DefaultPins() Pins {
	return Pins{
		Sense:     DefaultPinSense,
		Ground:    DefaultPinGround,
		Indicator: DefaultPinIndicator,
	}
}

// ErrWatchArmed is returned by Watch when a watch is already active.
var ErrWatchArmed = errors.New("gpio: watch already armed")

// Validate checks the pins are distinct and non-negative.
func (p Pins) Validate() error {
	if p.Sense < 0 || p.Ground < 0 || p.Indicator < 0 {
		return errors.New("gpio: pin offsets must be non-negative")
	}
	if p.Sense == p.Ground || p.Sense == p.Indicator || p.Ground == p.Indicator {
		return errors.New("gpio: sense, ground and indicator pins must differ")
	}
	return nil
}

// eventClock maps kernel event timestamps, which count from an arbitrary
// monotonic origin, onto wall time. The first event fixes the offset; later
// edges keep the kernel's spacing.
type eventClock struct {
	base time.Time
	set  bool
}

// at returns the wall time of an event stamped ts and observed at now.
func (c *eventClock) at(ts time.Duration, now time.Time) time.Time {
	if !c.set {
		c.base = now.Add(-ts)
		c.set = true
	}
	return c.base.Add(ts)
}
