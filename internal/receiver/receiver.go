// Package receiver decodes meter advertisements seen over the air and
// records the derived energy readings.
package receiver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/sweeney/meter-sensor/internal/advert"
	"github.com/sweeney/meter-sensor/internal/carbon"
	"github.com/sweeney/meter-sensor/internal/logic"
	"github.com/sweeney/meter-sensor/internal/mqtt"
	"github.com/sweeney/meter-sensor/internal/store"
)

// Sighting is one manufacturer data element from one advertisement.
type Sighting struct {
	Address   string
	RSSI      int16
	CompanyID uint16
	Data      []byte
	Time      time.Time
}

// Scanner delivers advertisements until ctx is done.
type Scanner interface {
	Scan(ctx context.Context, fn func(Sighting)) error
}

// Config contains the receiver settings.
type Config struct {
	Devices        []string      // addresses to accept, empty accepts any
	ManufacturerID uint16        // company identifier carrying the payload
	DedupTTL       time.Duration // identical payloads within this window are recorded once, 0 disables
	ImpPerKWh      float64
}

// IntensitySource returns the grid carbon intensity at a point in time.
type IntensitySource interface {
	Lookup(ctx context.Context, t time.Time) (carbon.Intensity, error)
}

// Stats counts what happened to sightings.
type Stats struct {
	Sightings  int
	Ignored    int // other devices or manufacturers
	Invalid    int // payload could not be decoded
	Duplicates int
	Recorded   int
	NoCarbon   int // recorded without an intensity forecast
}

// Receiver filters, decodes, de-duplicates and records sightings.
type Receiver struct {
	cfg     Config
	allow   map[string]bool
	writers []store.Writer
	pub     mqtt.Publisher
	carbon  IntensitySource
	log     zerolog.Logger
	seen    *ttlcache.Cache[string, struct{}]

	mu     sync.Mutex
	totals map[string]float64
	stats  Stats
}

// New creates a Receiver that writes to every given writer.
func New(cfg Config, log zerolog.Logger, writers ...store.Writer) *Receiver {
	r := &Receiver{
		cfg:     cfg,
		allow:   make(map[string]bool, len(cfg.Devices)),
		writers: writers,
		log:     log,
		totals:  make(map[string]float64),
	}
	for _, d := range cfg.Devices {
		r.allow[normalizeAddress(d)] = true
	}
	if cfg.DedupTTL > 0 {
		r.seen = ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](cfg.DedupTTL),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		)
	}
	return r
}

// SetPublisher also publishes every recorded reading to MQTT.
func (r *Receiver) SetPublisher(p mqtt.Publisher) {
	r.pub = p
}

// SetIntensitySource attaches the grid carbon intensity and the emissions
// of each record's energy delta.
func (r *Receiver) SetIntensitySource(src IntensitySource) {
	r.carbon = src
}

// Run scans until ctx is done.
func (r *Receiver) Run(ctx context.Context, sc Scanner) error {
	if r.seen != nil {
		go r.seen.Start()
		defer r.seen.Stop()
	}

	r.log.Info().
		Strs("devices", r.cfg.Devices).
		Str("manufacturer", fmt.Sprintf("0x%04X", r.cfg.ManufacturerID)).
		Msg("scanning")

	if err := sc.Scan(ctx, func(s Sighting) { r.Handle(ctx, s) }); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}

// Handle processes one sighting. It returns the record and true if the
// sighting was recorded.
func (r *Receiver) Handle(ctx context.Context, s Sighting) (store.Record, bool) {
	addr := normalizeAddress(s.Address)

	r.mu.Lock()
	r.stats.Sightings++
	if s.CompanyID != r.cfg.ManufacturerID || (len(r.allow) > 0 && !r.allow[addr]) {
		r.stats.Ignored++
		r.mu.Unlock()
		return store.Record{}, false
	}

	reading, err := advert.DecodePayload(s.Data)
	if err != nil {
		r.stats.Invalid++
		r.mu.Unlock()
		r.log.Warn().Err(err).Str("device", addr).Msg("undecodable advertisement")
		return store.Record{}, false
	}

	if r.seen != nil {
		key := fmt.Sprintf("%s/%02x/%d/%d", addr, reading.Battery, reading.Count, reading.Rate)
		if r.seen.Get(key) != nil {
			r.stats.Duplicates++
			r.mu.Unlock()
			return store.Record{}, false
		}
		r.seen.Set(key, struct{}{}, ttlcache.DefaultTTL)
	}

	total, kw := logic.Energy(reading.Count, reading.Rate, r.cfg.ImpPerKWh)
	var delta float64
	if prev, ok := r.totals[addr]; ok {
		delta = logic.DeltaKWh(prev, total)
	}
	r.totals[addr] = total
	r.stats.Recorded++
	r.mu.Unlock()

	rec := store.Record{
		Timestamp: s.Time.Truncate(time.Minute),
		Device:    addr,
		RSSI:      s.RSSI,
		Battery:   reading.Battery,
		Count:     reading.Count,
		Rate:      reading.Rate,
		TotalKWh:  total,
		KWh:       delta,
		KW:        kw,
	}
	if r.carbon != nil {
		in, err := r.carbon.Lookup(ctx, rec.Timestamp)
		if err != nil {
			r.mu.Lock()
			r.stats.NoCarbon++
			r.mu.Unlock()
			r.log.Warn().Err(err).Time("at", rec.Timestamp).Msg("carbon intensity unavailable")
		} else {
			rec.Carbon = &store.Carbon{Intensity: in.Forecast, Index: in.Index, Grams: in.Grams(delta)}
		}
	}

	r.log.Info().
		Str("device", addr).
		Int16("rssi", s.RSSI).
		Uint8("battery", rec.Battery).
		Float64("total_kwh", total).
		Float64("kw", kw).
		Msg("reading")

	for _, w := range r.writers {
		if err := w.Write(ctx, rec); err != nil {
			r.log.Warn().Err(err).Str("device", addr).Msg("store write failed")
		}
	}
	if r.pub != nil {
		err := r.pub.Publish(logic.Reading{
			Timestamp: s.Time,
			Device:    addr,
			Battery:   reading.Battery,
			Count:     reading.Count,
			Rate:      reading.Rate,
			RateValid: reading.Rate > 0,
		})
		if err != nil {
			r.log.Warn().Err(err).Msg("publish failed")
		}
	}
	return rec, true
}

// Stats returns a copy of the counters.
func (r *Receiver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func normalizeAddress(a string) string {
	return strings.ToUpper(strings.TrimSpace(a))
}
