package receiver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/meter-sensor/internal/advert"
	"github.com/sweeney/meter-sensor/internal/carbon"
	"github.com/sweeney/meter-sensor/internal/mqtt"
	"github.com/sweeney/meter-sensor/internal/store"
)

const puck = "F8:04:7F:C2:35:10"

var seenAt = time.Date(2026, 3, 1, 9, 30, 42, 0, time.UTC)

func sighting(addr string, battery uint8, count, rate uint32) Sighting {
	return Sighting{
		Address:   addr,
		RSSI:      -70,
		CompanyID: advert.ManufacturerID,
		Data:      advert.EncodePayload(battery, count, rate).Bytes(),
		Time:      seenAt,
	}
}

func newTestReceiver(t *testing.T, cfg Config) (*Receiver, *store.FakeWriter) {
	t.Helper()
	if cfg.ManufacturerID == 0 {
		cfg.ManufacturerID = advert.ManufacturerID
	}
	if cfg.ImpPerKWh == 0 {
		cfg.ImpPerKWh = 1000
	}
	w := store.NewFakeWriter()
	return New(cfg, zerolog.Nop(), w), w
}

func TestHandleDecodesAndDerivesEnergy(t *testing.T) {
	r, w := newTestReceiver(t, Config{Devices: []string{"f8:04:7f:c2:35:10"}, ImpPerKWh: 800})

	rec, ok := r.Handle(context.Background(), sighting(puck, 87, 1600, 400))
	require.True(t, ok)

	assert.Equal(t, puck, rec.Device)
	assert.Equal(t, uint8(87), rec.Battery)
	assert.Equal(t, uint32(1600), rec.Count)
	assert.Equal(t, uint32(400), rec.Rate)
	assert.InDelta(t, 2.0, rec.TotalKWh, 1e-9)
	assert.InDelta(t, 0.5, rec.KW, 1e-9)
	assert.Zero(t, rec.KWh, "first reading has no previous total")
	assert.Equal(t, int16(-70), rec.RSSI)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), rec.Timestamp)

	require.Len(t, w.Written(), 1)
	assert.Equal(t, rec, w.Written()[0])
}

func TestHandleFiltersDevicesAndManufacturer(t *testing.T) {
	r, w := newTestReceiver(t, Config{Devices: []string{puck}})

	_, ok := r.Handle(context.Background(), sighting("AA:BB:CC:DD:EE:FF", 50, 1, 0))
	assert.False(t, ok, "unknown device")

	other := sighting(puck, 50, 1, 0)
	other.CompanyID = 0x004C
	_, ok = r.Handle(context.Background(), other)
	assert.False(t, ok, "other manufacturer")

	assert.Empty(t, w.Written())
	assert.Equal(t, Stats{Sightings: 2, Ignored: 2}, r.Stats())
}

func TestHandleAcceptsAnyDeviceWhenUnconfigured(t *testing.T) {
	r, _ := newTestReceiver(t, Config{})

	_, ok := r.Handle(context.Background(), sighting("AA:BB:CC:DD:EE:FF", 50, 1, 0))
	assert.True(t, ok)
}

func TestHandleRejectsShortPayload(t *testing.T) {
	r, w := newTestReceiver(t, Config{})

	s := sighting(puck, 50, 1, 0)
	s.Data = s.Data[:5]
	_, ok := r.Handle(context.Background(), s)

	assert.False(t, ok)
	assert.Empty(t, w.Written())
	assert.Equal(t, 1, r.Stats().Invalid)
}

func TestHandleDeltaAcrossReadings(t *testing.T) {
	r, _ := newTestReceiver(t, Config{})
	ctx := context.Background()

	r.Handle(ctx, sighting(puck, 87, 1000, 1200))
	rec, ok := r.Handle(ctx, sighting(puck, 87, 1250, 1200))
	require.True(t, ok)
	assert.InDelta(t, 0.25, rec.KWh, 1e-9)

	// Sensor rebooted: counter restarted from zero.
	rec, ok = r.Handle(ctx, sighting(puck, 87, 3, 0))
	require.True(t, ok)
	assert.InDelta(t, 0.003, rec.KWh, 1e-9)
}

func TestHandleDeltaIsPerDevice(t *testing.T) {
	r, _ := newTestReceiver(t, Config{})
	ctx := context.Background()

	r.Handle(ctx, sighting(puck, 87, 1000, 0))
	rec, _ := r.Handle(ctx, sighting("AA:BB:CC:DD:EE:FF", 87, 5000, 0))
	assert.Zero(t, rec.KWh, "first reading of a second device")
}

func TestHandleDeduplicates(t *testing.T) {
	r, w := newTestReceiver(t, Config{DedupTTL: time.Minute})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r.Handle(ctx, sighting(puck, 87, 42, 100))
	}
	r.Handle(ctx, sighting(puck, 87, 43, 100))

	assert.Len(t, w.Written(), 2)
	stats := r.Stats()
	assert.Equal(t, 4, stats.Duplicates)
	assert.Equal(t, 2, stats.Recorded)
}

func TestHandleDedupExpires(t *testing.T) {
	r, w := newTestReceiver(t, Config{DedupTTL: 20 * time.Millisecond})
	ctx := context.Background()

	r.Handle(ctx, sighting(puck, 87, 42, 100))
	time.Sleep(50 * time.Millisecond)
	r.Handle(ctx, sighting(puck, 87, 42, 100))

	assert.Len(t, w.Written(), 2)
}

func TestHandleWithoutDedup(t *testing.T) {
	r, w := newTestReceiver(t, Config{})
	ctx := context.Background()

	r.Handle(ctx, sighting(puck, 87, 42, 100))
	r.Handle(ctx, sighting(puck, 87, 42, 100))

	assert.Len(t, w.Written(), 2)
}

func TestHandleWriterErrorDoesNotStopOthers(t *testing.T) {
	failing := store.NewFakeWriter()
	failing.WriteError = errors.New("influx down")
	ok := store.NewFakeWriter()
	r := New(Config{ManufacturerID: advert.ManufacturerID, ImpPerKWh: 1000}, zerolog.Nop(), failing, ok)

	_, recorded := r.Handle(context.Background(), sighting(puck, 87, 42, 100))
	assert.True(t, recorded)
	assert.Len(t, ok.Written(), 1)
}

func TestHandlePublishesReading(t *testing.T) {
	r, _ := newTestReceiver(t, Config{})
	pub := mqtt.NewFakePublisher()
	r.SetPublisher(pub)

	r.Handle(context.Background(), sighting(puck, 87, 42, 100))
	r.Handle(context.Background(), sighting(puck, 87, 43, 0))

	require.Equal(t, 2, pub.ReadingCount())
	assert.Equal(t, puck, pub.Readings[0].Device)
	assert.Equal(t, uint32(42), pub.Readings[0].Count)
	assert.True(t, pub.Readings[0].RateValid)
	assert.False(t, pub.Readings[1].RateValid)
	assert.Equal(t, seenAt, pub.Readings[0].Timestamp)
}

type fixedIntensity struct {
	in    carbon.Intensity
	err   error
	calls []time.Time
}

func (f *fixedIntensity) Lookup(_ context.Context, t time.Time) (carbon.Intensity, error) {
	f.calls = append(f.calls, t)
	return f.in, f.err
}

func TestHandleAddsCarbon(t *testing.T) {
	r, w := newTestReceiver(t, Config{})
	src := &fixedIntensity{in: carbon.Intensity{Forecast: 180, Index: "moderate"}}
	r.SetIntensitySource(src)
	ctx := context.Background()

	first, ok := r.Handle(ctx, sighting(puck, 87, 1000, 1200))
	require.True(t, ok)
	require.NotNil(t, first.Carbon)
	assert.Equal(t, 180, first.Carbon.Intensity)
	assert.Equal(t, "moderate", first.Carbon.Index)
	assert.Zero(t, first.Carbon.Grams, "no energy delta on the first reading")

	second, _ := r.Handle(ctx, sighting(puck, 87, 1250, 1200))
	require.NotNil(t, second.Carbon)
	assert.InDelta(t, 45.0, second.Carbon.Grams, 1e-9)

	require.Len(t, src.calls, 2)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), src.calls[0])
	assert.Equal(t, second, w.Written()[1])
}

func TestHandleCarbonUnavailable(t *testing.T) {
	r, w := newTestReceiver(t, Config{})
	r.SetIntensitySource(&fixedIntensity{err: carbon.ErrNoData})

	rec, ok := r.Handle(context.Background(), sighting(puck, 87, 42, 100))
	require.True(t, ok, "reading is still recorded")
	assert.Nil(t, rec.Carbon)
	assert.Len(t, w.Written(), 1)
	assert.Equal(t, 1, r.Stats().NoCarbon)
}

func TestRunDeliversScannerSightings(t *testing.T) {
	r, w := newTestReceiver(t, Config{DedupTTL: time.Minute})
	sc := &FakeScanner{Sightings: []Sighting{
		sighting(puck, 87, 1, 0),
		sighting(puck, 87, 1, 0),
		sighting(puck, 87, 2, 1200),
	}}

	require.NoError(t, r.Run(context.Background(), sc))
	assert.Len(t, w.Written(), 2)
}

func TestRunStopsOnContext(t *testing.T) {
	r, _ := newTestReceiver(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	sc := &FakeScanner{Sightings: []Sighting{sighting(puck, 87, 1, 0)}, Block: true}

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx, sc) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunWrapsScanError(t *testing.T) {
	r, _ := newTestReceiver(t, Config{})
	scanErr := errors.New("adapter powered off")

	err := r.Run(context.Background(), &FakeScanner{Err: scanErr})
	assert.ErrorIs(t, err, scanErr)
}
