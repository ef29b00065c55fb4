// Package logic contains the pure pulse-counting logic for the meter sensor.
// This package has NO external dependencies (no GPIO, BLE, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// SecondsPerHour converts a per-second interval into a flashes-per-hour rate.
const SecondsPerHour = 3600

// RejectReason explains why an edge was not counted.
type RejectReason string

const (
	RejectNone   RejectReason = ""
	RejectBounce RejectReason = "BOUNCE"
)

// Result describes the outcome of processing a single falling edge.
type Result struct {
	Time     time.Time
	Accepted bool
	Reason   RejectReason

	// Elapsed is the interval since the previous accepted edge, rounded to
	// whole seconds. Zero for the first edge.
	Elapsed time.Duration

	Count     uint32
	Rate      uint32 // flashes per hour
	RateValid bool   // false until two edges have been accepted
	RateHeld  bool   // interval rounded to zero, previous rate kept
}

// Snapshot is a point-in-time copy of the counter state.
type Snapshot struct {
	Count     uint32
	Rate      uint32
	RateValid bool
	LastEdge  time.Time // zero until the first accepted edge
	Accepted  int
	Rejected  int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counter   Snapshot
}
