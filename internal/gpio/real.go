//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealBoard drives actual hardware using the Linux GPIO character device.
type RealBoard struct {
	chip *gpiocdev.Chip
	pins Pins

	mu     sync.Mutex
	ground *gpiocdev.Line
	sense  *gpiocdev.Line

	ledMu     sync.Mutex
	indicator *gpiocdev.Line
	ledTimer  *time.Timer
}

// NewRealBoard opens the chip and claims the indicator line (initially off).
// The sense and ground lines are claimed by Watch and DriveLow.
func NewRealBoard(chipName string, pins Pins) (*RealBoard, error) {
	if err := pins.Validate(); err != nil {
		return nil, err
	}

	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("meter-sensor"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	led, err := chip.RequestLine(pins.Indicator, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request indicator pin %d: %w", pins.Indicator, err)
	}

	return &RealBoard{
		chip:      chip,
		pins:      pins,
		indicator: led,
	}, nil
}

// ClearWatch releases the sense line.
func (b *RealBoard) ClearWatch() error {
	b.mu.Lock()
	l := b.sense
	b.sense = nil
	b.mu.Unlock()

	// Closed outside the lock: the event handler may be running and
	// calling back into the board.
	if l == nil {
		return nil
	}
	if err := l.Close(); err != nil {
		return fmt.Errorf("close sense pin: %w", err)
	}
	return nil
}

// DriveLow claims the ground pin as an output at 0, or re-asserts 0.
func (b *RealBoard) DriveLow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ground != nil {
		if err := b.ground.SetValue(0); err != nil {
			return fmt.Errorf("set ground pin: %w", err)
		}
		return nil
	}

	l, err := b.chip.RequestLine(b.pins.Ground, gpiocdev.AsOutput(0))
	if err != nil {
		return fmt.Errorf("request ground pin %d: %w", b.pins.Ground, err)
	}
	b.ground = l
	return nil
}

// Watch requests the sense line with pull-up and falling-edge detection.
// gpiocdev delivers events for a line from a single goroutine, so fn is
// never called concurrently with itself.
func (b *RealBoard) Watch(fn func(Edge)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sense != nil {
		return ErrWatchArmed
	}

	var clock eventClock
	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type != gpiocdev.LineEventFallingEdge {
			return
		}
		fn(Edge{Time: clock.at(evt.Timestamp, time.Now()), Seq: evt.LineSeqno})
	}

	l, err := b.chip.RequestLine(b.pins.Sense,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(handler),
	)
	if err != nil {
		return fmt.Errorf("request sense pin %d: %w", b.pins.Sense, err)
	}
	b.sense = l
	return nil
}

// Pulse turns the indicator on and schedules it off after d. A pulse that
// arrives while one is in flight extends it.
func (b *RealBoard) Pulse(d time.Duration) error {
	b.ledMu.Lock()
	defer b.ledMu.Unlock()

	if err := b.indicator.SetValue(1); err != nil {
		return fmt.Errorf("set indicator pin: %w", err)
	}
	if b.ledTimer != nil {
		b.ledTimer.Stop()
	}
	b.ledTimer = time.AfterFunc(d, b.ledOff)
	return nil
}

// ledOff ends a pulse. Close may have released the line while the timer
// waited for ledMu.
func (b *RealBoard) ledOff() {
	b.ledMu.Lock()
	defer b.ledMu.Unlock()
	if b.indicator != nil {
		b.indicator.SetValue(0)
	}
}

// Close releases GPIO resources.
// Output pins are reconfigured to inputs before closing so nothing is left
// driven once the daemon exits.
func (b *RealBoard) Close() error {
	var errs []error

	if err := b.ClearWatch(); err != nil {
		errs = append(errs, err)
	}

	b.ledMu.Lock()
	if b.ledTimer != nil {
		b.ledTimer.Stop()
	}
	if b.indicator != nil {
		if err := b.indicator.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure indicator pin: %w", err))
		}
		if err := b.indicator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close indicator pin: %w", err))
		}
		b.indicator = nil
	}
	b.ledMu.Unlock()

	b.mu.Lock()
	if b.ground != nil {
		if err := b.ground.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure ground pin: %w", err))
		}
		if err := b.ground.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ground pin: %w", err))
		}
		b.ground = nil
	}
	b.mu.Unlock()

	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// ReadSense returns the raw level of the sense pin (1 = idle with pull-up).
// It opens the line briefly and must not be used while a watch is armed.
func ReadSense(chipName string, pin int) (int, error) {
	l, err := gpiocdev.RequestLine(chipName, pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return 0, fmt.Errorf("request sense pin %d: %w", pin, err)
	}
	defer l.Close()

	v, err := l.Value()
	if err != nil {
		return 0, fmt.Errorf("read sense pin: %w", err)
	}
	return v, nil
}
