// Package propagation adapts SGP4 implementations to a single Propagator
// contract: element set + instant -> TEME position/velocity, or an error.
package propagation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kvsankar/sattosat/internal/geometry"
	"github.com/kvsankar/sattosat/internal/tle"
	"github.com/kvsankar/sattosat/internal/transform"
)

// ErrPropagation marks a failure to produce a usable state at a given time.
// Callers treat it as "no data here", never as fatal.
var ErrPropagation = errors.New("propagation failed")

// PositionVelocity is a propagated state in the TEME frame.
type PositionVelocity struct {
	Time     time.Time          `json:"time"`
	Position geometry.Vec       `json:"position_km"`
	Velocity geometry.Vec       `json:"velocity_km_s"`
	Geodetic transform.Geodetic `json:"geodetic"`
}

// Locate fills in Geodetic from Position and Time. Propagate leaves it zero
// because the search path never reads it.
func (pv *PositionVelocity) Locate() {
	pv.Geodetic = transform.SubPoint(pv.Position, pv.Time)
}

// Propagator computes the state of one element set at arbitrary instants.
// Implementations are deterministic and safe for concurrent use.
type Propagator interface {
	Propagate(t time.Time) (PositionVelocity, error)
}

// Factory builds a Propagator for one element set.
type Factory func(tle.ElementSet) (Propagator, error)

// Backend names accepted by NewFactory.
const (
	BackendGoSatellite = "go-satellite"
	BackendLibSGP4     = "libsgp4"
)

// NewFactory returns the Factory for the named backend. An empty name
// selects go-satellite.
func NewFactory(backend string) (Factory, error) {
	switch backend {
	case "", BackendGoSatellite:
		return func(es tle.ElementSet) (Propagator, error) { return NewSGP4Propagator(es) }, nil
	case BackendLibSGP4:
		return func(es tle.ElementSet) (Propagator, error) { return NewLibSGP4Propagator(es) }, nil
	default:
		return nil, fmt.Errorf("unknown propagation backend %q (want %q or %q)",
			backend, BackendGoSatellite, BackendLibSGP4)
	}
}

// checkState rejects non-finite output and positions outside any plausible
// Earth orbit.
func checkState(noradID int, pos, vel geometry.Vec) error {
	if !transform.ValidOrbitRadius(pos) {
		return fmt.Errorf("%w for NORAD %d: implausible position [%.1f, %.1f, %.1f] km",
			ErrPropagation, noradID, pos.X, pos.Y, pos.Z)
	}
	for _, c := range [3]float64{vel.X, vel.Y, vel.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w for NORAD %d: non-finite velocity", ErrPropagation, noradID)
		}
	}
	return nil
}
