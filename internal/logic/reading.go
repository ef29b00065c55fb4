package logic

import "time"

// DefaultImpPerKWh is the meter constant printed next to most meter LEDs.
const DefaultImpPerKWh = 1000

// Reading is one observation of a meter sensor, either taken locally after an
// accepted edge or decoded from a received advertisement.
type Reading struct {
	Timestamp time.Time
	Device    string // hostname or BLE address of the sensor
	BootID    string // empty when decoded from the air
	Battery   uint8
	Count     uint32
	Rate      uint32
	RateValid bool
}

// Energy converts a flash count and hourly rate into cumulative kWh and
// instantaneous kW. A non-positive impPerKWh yields zeros.
func Energy(count, rate uint32, impPerKWh float64) (totalKWh, kW float64) {
	if impPerKWh <= 0 {
		return 0, 0
	}
	return float64(count) / impPerKWh, float64(rate) / impPerKWh
}

// DeltaKWh returns the energy used since the previous total. A total that went
// backwards means the sensor restarted, so the whole new total is the delta.
func DeltaKWh(prev, total float64) float64 {
	if total < prev {
		return total
	}
	return total - prev
}
