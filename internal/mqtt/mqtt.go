// Package mqtt publishes meter readings and lifecycle events, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/meter-sensor/internal/logic"
)

// Topic is the MQTT topic for meter readings.
const Topic = "energy/meter/sensor/readings"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "energy/meter/sensor/system"

// Publisher publishes readings to MQTT.
type Publisher interface {
	// Publish sends a meter reading to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(r logic.Reading) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Meter MeterPayload `json:"meter"`
}

// MeterPayload contains the reading details.
type MeterPayload struct {
	Timestamp string  `json:"timestamp"`
	Device    string  `json:"device,omitempty"`
	BootID    string  `json:"boot_id,omitempty"`
	Battery   uint8   `json:"battery"`
	Count     uint32  `json:"count"`
	Rate      uint32  `json:"rate"`
	RateValid bool    `json:"rate_valid"`
	TotalKWh  float64 `json:"total_kwh"`
	KW        float64 `json:"kw"`
}

// FormatPayload creates the JSON payload for a reading. impPerKWh is the
// meter constant used to derive energy.
func FormatPayload(r logic.Reading, impPerKWh float64) ([]byte, error) {
	total, kw := logic.Energy(r.Count, r.Rate, impPerKWh)
	payload := Payload{
		Meter: MeterPayload{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
			Device:    r.Device,
			BootID:    r.BootID,
			Battery:   r.Battery,
			Count:     r.Count,
			Rate:      r.Rate,
			RateValid: r.RateValid,
			TotalKWh:  total,
			KW:        kw,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
