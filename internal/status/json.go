package status

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/meter-sensor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Ready         bool         `json:"ready"`
	BootID        string       `json:"boot_id"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Meter         MeterJSON    `json:"meter"`
	Advert        AdvertJSON   `json:"advert"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MeterJSON is the JSON representation of the counter.
type MeterJSON struct {
	Count         uint32  `json:"count"`
	Rate          uint32  `json:"rate"`
	RateValid     bool    `json:"rate_valid"`
	TotalKWh      float64 `json:"total_kwh"`
	KW            float64 `json:"kw"`
	Battery       uint8   `json:"battery"`
	LastEdge      string  `json:"last_edge,omitempty"`
	Accepted      int     `json:"accepted"`
	Rejected      int     `json:"rejected"`
	BatteryErrors int     `json:"battery_errors"`
}

// AdvertJSON reports what is on air.
type AdvertJSON struct {
	Active  bool   `json:"active"`
	Payload string `json:"payload"`
	Errors  int    `json:"errors"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Buffered  int    `json:"buffered"`
	Dropped   int    `json:"dropped"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip             string   `json:"chip"`
	Pins             PinsJSON `json:"pins"`
	DebounceMs       int64    `json:"debounce_ms"`
	PulseMs          int64    `json:"pulse_ms"`
	HeartbeatMs      int64    `json:"heartbeat_ms"`
	AdvertIntervalMs int64    `json:"advert_interval_ms"`
	ManufacturerID   string   `json:"manufacturer_id"`
	Connectable      bool     `json:"connectable"`
	ImpPerKWh        float64  `json:"imp_per_kwh"`
	Broker           string   `json:"broker"`
	HTTPAddr         string   `json:"http_addr"`
}

// PinsJSON lists the BCM line offsets.
type PinsJSON struct {
	Sense     int `json:"sense"`
	Ground    int `json:"ground"`
	Indicator int `json:"indicator"`
}

func buildInner(snap Snapshot) StatusInner {
	s := snap.Sensor
	total, kw := logic.Energy(s.Counter.Count, s.Counter.Rate, snap.Config.ImpPerKWh)

	meter := MeterJSON{
		Count:         s.Counter.Count,
		Rate:          s.Counter.Rate,
		RateValid:     s.Counter.RateValid,
		TotalKWh:      total,
		KW:            kw,
		Battery:       s.Battery,
		Accepted:      s.Counter.Accepted,
		Rejected:      s.Counter.Rejected,
		BatteryErrors: s.BatteryErrors,
	}
	if !s.Counter.LastEdge.IsZero() {
		meter.LastEdge = s.Counter.LastEdge.UTC().Format(time.RFC3339)
	}

	cfg := snap.Config
	return StatusInner{
		State:         s.State.String(),
		Ready:         snap.Watching(),
		BootID:        snap.BootID,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Meter:         meter,
		Advert: AdvertJSON{
			Active:  s.Advertised,
			Payload: s.Payload.String(),
			Errors:  s.AdvertErrors,
		},
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    cfg.Broker,
			Buffered:  snap.MQTTBuffered,
			Dropped:   snap.MQTTDropped,
		},
		Config: ConfigJSON{
			Chip:             cfg.Chip,
			Pins:             PinsJSON{Sense: cfg.PinSense, Ground: cfg.PinGround, Indicator: cfg.PinIndicator},
			DebounceMs:       cfg.DebounceMs,
			PulseMs:          cfg.PulseMs,
			HeartbeatMs:      cfg.HeartbeatMs,
			AdvertIntervalMs: cfg.AdvertIntervalMs,
			ManufacturerID:   fmt.Sprintf("0x%04X", cfg.ManufacturerID),
			Connectable:      cfg.Connectable,
			ImpPerKWh:        cfg.ImpPerKWh,
			Broker:           cfg.Broker,
			HTTPAddr:         cfg.HTTPAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
