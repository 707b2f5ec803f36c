package conjunction

import (
	"encoding/json"
	"math"
	"time"
)

// DistanceSample is one point of a distance curve. A failed propagation
// yields DistanceKm = +Inf and OK = false.
type DistanceSample struct {
	Time       time.Time
	DistanceKm float64
	OK         bool
}

// MarshalJSON encodes a failed sample's distance as null, since JSON has no
// infinity.
func (s DistanceSample) MarshalJSON() ([]byte, error) {
	var d *float64
	if s.OK {
		d = &s.DistanceKm
	}
	return json.Marshal(struct {
		Time       time.Time `json:"t"`
		DistanceKm *float64  `json:"distance_km"`
		OK         bool      `json:"ok"`
	}{s.Time, d, s.OK})
}

// sampleCurve evaluates the distance at n evenly spaced instants from start
// to end inclusive. It returns an empty slice when either track is empty,
// n <= 1, or the window is empty.
func sampleCurve(a, b *Track, start, end time.Time, n int) []DistanceSample {
	if a.Len() == 0 || b.Len() == 0 || n <= 1 || !end.After(start) {
		return []DistanceSample{}
	}

	span := float64(end.Sub(start))
	out := make([]DistanceSample, n)
	for i := range out {
		t := start.Add(time.Duration(math.Round(span * float64(i) / float64(n-1))))
		if i == n-1 {
			t = end
		}
		d, ok := distanceAt(a, b, t)
		if !ok {
			d = math.Inf(1)
		}
		out[i] = DistanceSample{Time: t, DistanceKm: d, OK: ok}
	}
	return out
}
