package conjunction

import (
	"math"
	"time"

	"github.com/kvsankar/sattosat/internal/geometry"
	"github.com/kvsankar/sattosat/internal/propagation"
	"github.com/kvsankar/sattosat/internal/transform"
)

// EarthRelation classifies the A->B line of sight against the Earth.
type EarthRelation string

const (
	// EarthClear means the Earth is nowhere near the line of sight.
	EarthClear EarthRelation = "clear"
	// EarthBackground means B is seen from A against the Earth's disc.
	EarthBackground EarthRelation = "background"
	// EarthObstructed means the Earth lies between A and B.
	EarthObstructed EarthRelation = "obstructed"
)

// SatelliteState is one satellite's identity and state at a conjunction.
type SatelliteState struct {
	NORADID int                          `json:"norad_id"`
	Name    string                       `json:"name"`
	State   propagation.PositionVelocity `json:"state"`
}

// Conjunction is a refined, classified close approach.
type Conjunction struct {
	Time                time.Time      `json:"time"`
	DistanceKm          float64        `json:"distance_km"`
	RelativeVelocityKmS float64        `json:"relative_velocity_km_s"`
	PhaseAngleDeg       float64        `json:"phase_angle_deg"`
	EarthRelation       EarthRelation  `json:"earth_relation"`
	EarthMissKm         float64        `json:"earth_miss_km"`
	A                   SatelliteState `json:"a"`
	B                   SatelliteState `json:"b"`
}

// enrich repropagates both tracks at the candidate time and builds the
// Conjunction record. ok is false when either propagation fails.
func enrich(c candidate, a, b *Track, sun func(time.Time) geometry.Vec) (Conjunction, bool) {
	pa, pb, ok := statesAt(a, b, c.t)
	if !ok {
		return Conjunction{}, false
	}
	pa.Locate()
	pb.Locate()

	relation, miss := classifyEarthRelation(pa.Position, pb.Position)
	sa, sb := a.Active(c.t), b.Active(c.t)

	return Conjunction{
		Time:                c.t,
		DistanceKm:          geometry.Distance(pa.Position, pb.Position),
		RelativeVelocityKmS: geometry.Distance(pa.Velocity, pb.Velocity),
		PhaseAngleDeg:       phaseAngle(pa.Position, pb.Position, sun(c.t)),
		EarthRelation:       relation,
		EarthMissKm:         miss,
		A:                   SatelliteState{NORADID: sa.NORADID, Name: sa.Name, State: pa},
		B:                   SatelliteState{NORADID: sb.NORADID, Name: sb.Name, State: pb},
	}, true
}

// phaseAngle returns the angle at B, in degrees, between the directions to
// the Sun and to A.
func phaseAngle(a, b, sun geometry.Vec) float64 {
	toSun := geometry.Sub(sun, b)
	toA := geometry.Sub(a, b)
	return geometry.AngleBetween(toSun, toA) * 180 / math.Pi
}

// classifyEarthRelation tests the point of line AB closest to the geocenter.
// Within one Earth radius and strictly between A and B is obstructed; within
// one radius but past B is background. This is a closest-point test, not a
// segment/sphere intersection, so grazing geometry can be misclassified.
// The second result is the distance from the geocenter to segment AB.
func classifyEarthRelation(a, b geometry.Vec) (EarthRelation, float64) {
	ap := geometry.ClosestPointToOrigin(a, b)

	relation := EarthClear
	if ap.LineDistance < transform.EarthRadiusKm {
		switch {
		case ap.T > 0 && ap.T < 1:
			relation = EarthObstructed
		case ap.T > 1:
			relation = EarthBackground
		}
	}
	return relation, ap.SegmentDistance
}
