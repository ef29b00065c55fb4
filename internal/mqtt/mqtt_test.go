package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/meter-sensor/internal/logic"
)

func testReading() logic.Reading {
	return logic.Reading{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Device:    "meter-pi",
		BootID:    "5f0c6c1e-2b7a-4a53-9c55-2d0f3b7e8a11",
		Battery:   87,
		Count:     42,
		Rate:      100,
		RateValid: true,
	}
}

func TestFormatPayload(t *testing.T) {
	payload, err := FormatPayload(testReading(), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	m := parsed.Meter
	if m.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", m.Timestamp)
	}
	if m.Device != "meter-pi" {
		t.Errorf("unexpected device: %s", m.Device)
	}
	if m.Battery != 87 || m.Count != 42 || m.Rate != 100 || !m.RateValid {
		t.Errorf("unexpected reading fields: %+v", m)
	}
	if m.TotalKWh != 0.042 {
		t.Errorf("total_kwh: got %v, want 0.042", m.TotalKWh)
	}
	if m.KW != 0.1 {
		t.Errorf("kw: got %v, want 0.1", m.KW)
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	r := logic.Reading{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Battery:   50,
		Count:     1600,
		Rate:      400,
		RateValid: true,
	}
	payload, err := FormatPayload(r, 800)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"meter":{"timestamp":"2026-02-02T22:18:12Z","battery":50,"count":1600,"rate":400,"rate_valid":true,"total_kwh":2,"kw":0.5}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatPayloadRateNotYetValid(t *testing.T) {
	r := testReading()
	r.Count = 1
	r.Rate = 0
	r.RateValid = false

	payload, err := FormatPayload(r, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed["meter"]["rate_valid"] != false {
		t.Error("rate_valid should be false")
	}
	if parsed["meter"]["kw"] != 0.0 {
		t.Errorf("kw should be 0, got %v", parsed["meter"]["kw"])
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	r := testReading()
	r.Timestamp = time.Date(2026, 2, 2, 17, 18, 12, 0, loc)

	payload, err := FormatPayload(r, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Meter.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("timestamp should be UTC: got %s", parsed.Meter.Timestamp)
	}
}

func TestTopic(t *testing.T) {
	if Topic != "energy/meter/sensor/readings" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "energy/meter/sensor/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadReconnectedOmitsReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload should pass through unchanged, got %s", payload)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(testReading()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ReadingCount() != 1 {
		t.Fatalf("expected 1 reading, got %d", f.ReadingCount())
	}
	if f.Readings[0].Count != 42 {
		t.Errorf("unexpected count: %d", f.Readings[0].Count)
	}
	if len(f.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(f.Payloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("connection lost")

	if err := f.Publish(testReading()); err == nil {
		t.Error("expected error")
	}
	if f.ReadingCount() != 0 {
		t.Error("reading should not be recorded on error")
	}
}

func TestFakePublisherSystemEvents(t *testing.T) {
	f := NewFakePublisher()

	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true})
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "HEARTBEAT"})

	names := f.SystemEventNames()
	if len(names) != 2 || names[0] != "STARTUP" || names[1] != "HEARTBEAT" {
		t.Fatalf("unexpected events: %v", names)
	}
	if !f.SystemEvents[0].Retained {
		t.Error("STARTUP should be retained")
	}
	if f.SystemEvents[1].Retained {
		t.Error("HEARTBEAT should not be retained")
	}

	f.PublishSystemError = errors.New("broker gone")
	if err := f.PublishSystem(SystemEvent{Event: "SHUTDOWN"}); err == nil {
		t.Error("expected error")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(testReading())
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Close()
	f.Connected = true

	f.Reset()

	if f.ReadingCount() != 0 || len(f.Payloads) != 0 || len(f.SystemEvents) != 0 || len(f.SystemPayloads) != 0 {
		t.Error("recorded events should be cleared")
	}
	if f.Closed || f.IsConnected() {
		t.Error("flags should be cleared")
	}
}
