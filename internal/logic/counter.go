package logic

import (
	"math"
	"time"
)

// Counter accumulates falling edges and derives an instantaneous flash rate
// from the interval between the two most recent accepted edges.
type Counter struct {
	debounce time.Duration
	start    time.Time

	count     uint32
	rate      uint32
	rateValid bool
	last      time.Time
	hasLast   bool

	accepted int
	rejected int

	lastHeartbeat time.Time
}

// NewCounter creates a counter that rejects edges arriving closer than
// debounce to the previous accepted edge. A zero debounce accepts everything.
// The start time is used for uptime in heartbeat data.
func NewCounter(debounce time.Duration, start time.Time) *Counter {
	if debounce < 0 {
		debounce = 0
	}
	return &Counter{
		debounce:      debounce,
		start:         start,
		lastHeartbeat: start,
	}
}

// Process handles one falling edge observed at t.
func (c *Counter) Process(t time.Time) Result {
	if !c.hasLast {
		c.count++
		c.accepted++
		c.last = t
		c.hasLast = true
		return c.result(t, 0, false)
	}

	raw := absDuration(t.Sub(c.last))
	if raw < c.debounce {
		c.rejected++
		return Result{
			Time:      t,
			Reason:    RejectBounce,
			Count:     c.count,
			Rate:      c.rate,
			RateValid: c.rateValid,
		}
	}

	elapsed := raw.Round(time.Second)
	held := false
	if secs := int64(elapsed / time.Second); secs > 0 {
		c.rate = RateForInterval(secs)
		c.rateValid = true
	} else {
		// Sub-half-second interval: no defined rate, keep the previous one.
		held = true
	}

	c.count++
	c.accepted++
	c.last = t
	return c.result(t, elapsed, held)
}

func (c *Counter) result(t time.Time, elapsed time.Duration, held bool) Result {
	return Result{
		Time:      t,
		Accepted:  true,
		Elapsed:   elapsed,
		Count:     c.count,
		Rate:      c.rate,
		RateValid: c.rateValid,
		RateHeld:  held,
	}
}

// RateForInterval returns round(3600 / seconds). seconds must be positive.
func RateForInterval(seconds int64) uint32 {
	return uint32(math.Round(float64(SecondsPerHour) / float64(seconds)))
}

// Snapshot returns the current counter state.
func (c *Counter) Snapshot() Snapshot {
	s := Snapshot{
		Count:     c.count,
		Rate:      c.rate,
		RateValid: c.rateValid,
		Accepted:  c.accepted,
		Rejected:  c.rejected,
	}
	if c.hasLast {
		s.LastEdge = c.last
	}
	return s
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (c *Counter) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}

	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.start),
		Counter:   c.Snapshot(),
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
