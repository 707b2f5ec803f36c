package conjunction

import (
	"math"
	"time"

	"github.com/kvsankar/sattosat/internal/geometry"
	"github.com/kvsankar/sattosat/internal/propagation"
)

// statesAt propagates both tracks to t.
func statesAt(a, b *Track, t time.Time) (propagation.PositionVelocity, propagation.PositionVelocity, bool) {
	pa, ok := a.stateAt(t)
	if !ok {
		return pa, propagation.PositionVelocity{}, false
	}
	pb, ok := b.stateAt(t)
	if !ok {
		return pa, pb, false
	}
	return pa, pb, true
}

// distanceAt returns |rB - rA| in km, or ok=false when either propagation fails.
func distanceAt(a, b *Track, t time.Time) (float64, bool) {
	pa, pb, ok := statesAt(a, b, t)
	if !ok {
		return 0, false
	}
	return geometry.Distance(pa.Position, pb.Position), true
}

// distanceOrInf maps a failed evaluation to +Inf so it never wins a
// comparison.
func distanceOrInf(a, b *Track, t time.Time) float64 {
	d, ok := distanceAt(a, b, t)
	if !ok {
		return math.Inf(1)
	}
	return d
}
