package store

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the InfluxDB measurement name for meter records.
const Measurement = "energy"

// InfluxConfig holds InfluxDB v2 connection settings.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxWriter writes records to InfluxDB using the blocking write API.
type InfluxWriter struct {
	client influxdb2.Client
	api    api.WriteAPIBlocking
}

// NewInfluxWriter creates a writer. No connection is made until the first write.
func NewInfluxWriter(cfg InfluxConfig) *InfluxWriter {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxWriter{
		client: client,
		api:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// Ping checks that the server is reachable.
func (w *InfluxWriter) Ping(ctx context.Context) error {
	ok, err := w.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping influxdb: %w", err)
	}
	if !ok {
		return fmt.Errorf("ping influxdb: server not ready")
	}
	return nil
}

// Write stores one record.
func (w *InfluxWriter) Write(ctx context.Context, r Record) error {
	if err := w.api.WritePoint(ctx, Point(r)); err != nil {
		return fmt.Errorf("write point: %w", err)
	}
	return nil
}

// Close releases the client.
func (w *InfluxWriter) Close() error {
	w.client.Close()
	return nil
}

// Point converts a record to an InfluxDB point tagged by device.
func Point(r Record) *write.Point {
	fields := map[string]interface{}{
		"rssi":      int64(r.RSSI),
		"battery":   int64(r.Battery),
		"count":     int64(r.Count),
		"rate":      int64(r.Rate),
		"total_kwh": r.TotalKWh,
		"kwh":       r.KWh,
		"kw":        r.KW,
	}
	if r.Carbon != nil {
		fields["carbon_intensity"] = int64(r.Carbon.Intensity)
		fields["intensity_index"] = r.Carbon.Index
		fields["carbon_g"] = r.Carbon.Grams
	}
	return influxdb2.NewPoint(Measurement, map[string]string{"device": r.Device}, fields, r.Timestamp)
}
