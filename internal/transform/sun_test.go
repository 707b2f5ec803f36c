package transform

import (
	"math"
	"testing"
	"time"

	"github.com/kvsankar/sattosat/internal/geometry"
)

func TestSunPositionDistance(t *testing.T) {
	tests := []struct {
		name  string
		time  time.Time
		minAU float64
		maxAU float64
	}{
		// Perihelion early January, aphelion early July.
		{"perihelion", time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), 0.982, 0.985},
		{"aphelion", time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC), 1.015, 1.018},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			au := geometry.Norm(SunPosition(tt.time)) / AUKm
			if au < tt.minAU || au > tt.maxAU {
				t.Errorf("Sun distance = %.5f AU, want in [%.3f, %.3f]", au, tt.minAU, tt.maxAU)
			}
		})
	}
}

func TestSunPositionDeclination(t *testing.T) {
	tests := []struct {
		name    string
		time    time.Time
		wantDeg float64
		tolDeg  float64
	}{
		{"june solstice", time.Date(2025, 6, 21, 3, 0, 0, 0, time.UTC), 23.44, 0.05},
		{"december solstice", time.Date(2025, 12, 21, 15, 0, 0, 0, time.UTC), -23.44, 0.05},
		{"march equinox", time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC), 0, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SunPosition(tt.time)
			dec := math.Asin(s.Z/geometry.Norm(s)) * 180 / math.Pi
			if math.Abs(dec-tt.wantDeg) > tt.tolDeg {
				t.Errorf("declination = %.3f deg, want %.2f ± %.2f", dec, tt.wantDeg, tt.tolDeg)
			}
		})
	}
}
