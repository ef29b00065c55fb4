// Package sensor wires the pulse counter to the sense pin, the BLE
// advertiser and the indicator LED.
package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/meter-sensor/internal/advert"
	"github.com/sweeney/meter-sensor/internal/battery"
	"github.com/sweeney/meter-sensor/internal/gpio"
	"github.com/sweeney/meter-sensor/internal/logic"
)

// State is the handler lifecycle state.
type State int

const (
	Uninitialized State = iota
	Watching
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Watching:
		return "WATCHING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config contains the handler settings.
type Config struct {
	Advert   advert.Config
	Pulse    time.Duration // indicator on-time
	Debounce time.Duration
	Device   string // reported in readings
	BootID   string
}

// Snapshot is a point-in-time copy of the handler state.
type Snapshot struct {
	State         State
	Counter       logic.Snapshot
	Battery       uint8
	Payload       advert.Payload
	Advertised    bool // at least one advertisement is on air
	AdvertErrors  int
	BatteryErrors int
}

// Handler owns the counter and reacts to falling edges on the sense pin.
// Edges are expected one at a time; the mutex only guards readers such as
// Snapshot running on other goroutines.
type Handler struct {
	board   gpio.Board
	adv     advert.Advertiser
	battery battery.Reader
	cfg     Config
	log     zerolog.Logger
	sink    chan<- logic.Reading

	mu            sync.Mutex
	state         State
	counter       *logic.Counter
	lastBattery   uint8
	payload       advert.Payload
	advertised    bool
	advertErrors  int
	batteryErrors int
}

// New creates a Handler in the Uninitialized state. start is the time used for
// heartbeat uptime.
func New(board gpio.Board, adv advert.Advertiser, bat battery.Reader, cfg Config, start time.Time, log zerolog.Logger) *Handler {
	return &Handler{
		board:   board,
		adv:     adv,
		battery: bat,
		cfg:     cfg,
		log:     log,
		counter: logic.NewCounter(cfg.Debounce, start),
	}
}

// SetSink registers a channel that receives a Reading for every accepted
// edge. Sends never block; readings are dropped when the channel is full.
// Must be called before Init.
func (h *Handler) SetSink(ch chan<- logic.Reading) {
	h.sink = ch
}

// Init cancels any armed watch, drives the ground pin low and arms a
// falling-edge watch on the sense pin. Calling it again re-arms the watch
// and keeps the accumulated count.
// A failure after the old watch is cleared leaves the handler Uninitialized.
func (h *Handler) Init() error {
	if err := h.board.ClearWatch(); err != nil {
		return fmt.Errorf("clear watch: %w", err)
	}
	h.mu.Lock()
	prev := h.state
	h.state = Uninitialized
	h.mu.Unlock()

	if err := h.board.DriveLow(); err != nil {
		return fmt.Errorf("drive ground low: %w", err)
	}
	if err := h.board.Watch(func(e gpio.Edge) { h.HandleEdge(e) }); err != nil {
		return fmt.Errorf("watch sense pin: %w", err)
	}

	h.mu.Lock()
	h.state = Watching
	h.mu.Unlock()

	h.log.Info().Stringer("from", prev).Msg("watching for flashes")
	return nil
}

// HandleEdge counts the edge, rebroadcasts the advertisement and pulses the
// indicator, in that order. Rejected edges have no visible effect.
func (h *Handler) HandleEdge(e gpio.Edge) logic.Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	res := h.counter.Process(e.Time)
	if !res.Accepted {
		h.log.Debug().Time("at", e.Time).Str("reason", string(res.Reason)).Msg("edge rejected")
		return res
	}

	level := h.readBattery()
	ad := advert.Build(h.cfg.Advert, level, res.Count, res.Rate)
	if err := h.adv.Set(ad); err != nil {
		h.advertErrors++
		h.log.Warn().Err(err).Uint32("count", res.Count).Msg("advertise failed")
	} else {
		h.payload = ad.Data
		h.advertised = true
	}

	if err := h.board.Pulse(h.cfg.Pulse); err != nil {
		h.log.Warn().Err(err).Msg("indicator pulse failed")
	}

	ev := h.log.Debug().
		Uint32("count", res.Count).
		Uint32("rate", res.Rate).
		Uint8("battery", level).
		Dur("elapsed", res.Elapsed)
	if res.RateHeld {
		ev = ev.Bool("rate_held", true)
	}
	ev.Msg("flash")

	h.emit(logic.Reading{
		Timestamp: res.Time,
		Device:    h.cfg.Device,
		BootID:    h.cfg.BootID,
		Battery:   level,
		Count:     res.Count,
		Rate:      res.Rate,
		RateValid: res.RateValid,
	})
	return res
}

// readBattery returns the current level, or the last good one if the read
// fails. Caller must hold h.mu.
func (h *Handler) readBattery() uint8 {
	if h.battery == nil {
		return h.lastBattery
	}
	level, err := h.battery.Level()
	if err != nil {
		h.batteryErrors++
		h.log.Warn().Err(err).Uint8("using", h.lastBattery).Msg("battery read failed")
		return h.lastBattery
	}
	h.lastBattery = level
	return level
}

func (h *Handler) emit(r logic.Reading) {
	if h.sink == nil {
		return
	}
	select {
	case h.sink <- r:
	default:
		h.log.Debug().Uint32("count", r.Count).Msg("reading dropped, sink full")
	}
}

// State returns the lifecycle state.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Snapshot returns the current handler state.
func (h *Handler) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		State:         h.state,
		Counter:       h.counter.Snapshot(),
		Battery:       h.lastBattery,
		Payload:       h.payload,
		Advertised:    h.advertised,
		AdvertErrors:  h.advertErrors,
		BatteryErrors: h.batteryErrors,
	}
}

// CheckHeartbeat returns heartbeat data once per interval, or nil.
func (h *Handler) CheckHeartbeat(now time.Time, interval time.Duration) *logic.HeartbeatData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counter.CheckHeartbeat(now, interval)
}
