package logic

import (
	"math"
	"testing"
)

func TestEnergy(t *testing.T) {
	tests := []struct {
		name      string
		count     uint32
		rate      uint32
		imp       float64
		wantTotal float64
		wantKW    float64
	}{
		{"1000 imp/kWh", 2500, 1200, 1000, 2.5, 1.2},
		{"800 imp/kWh", 800, 400, 800, 1, 0.5},
		{"zero", 0, 0, 1000, 0, 0},
		{"invalid constant", 100, 100, 0, 0, 0},
		{"negative constant", 100, 100, -800, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, kw := Energy(tt.count, tt.rate, tt.imp)
			if math.Abs(total-tt.wantTotal) > 1e-9 {
				t.Errorf("total: got %v, want %v", total, tt.wantTotal)
			}
			if math.Abs(kw-tt.wantKW) > 1e-9 {
				t.Errorf("kW: got %v, want %v", kw, tt.wantKW)
			}
		})
	}
}

func TestDeltaKWh(t *testing.T) {
	if got := DeltaKWh(1.5, 2.0); got != 0.5 {
		t.Errorf("expected 0.5, got %v", got)
	}
	if got := DeltaKWh(2.0, 2.0); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
	// Counter reset after a sensor reboot.
	if got := DeltaKWh(120.0, 0.25); got != 0.25 {
		t.Errorf("expected 0.25 after reset, got %v", got)
	}
}
