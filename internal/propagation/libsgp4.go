package propagation

import (
	"fmt"
	"time"

	"github.com/akhenakh/sgp4"

	"github.com/kvsankar/sattosat/internal/geometry"
	"github.com/kvsankar/sattosat/internal/tle"
)

// LibSGP4Propagator wraps github.com/akhenakh/sgp4, a libsgp4 port that
// takes fractional minutes since epoch and so needs no interpolation.
type LibSGP4Propagator struct {
	elements *sgp4.TLE
	noradID  int
}

// NewLibSGP4Propagator parses and checks es for the libsgp4 backend.
func NewLibSGP4Propagator(es tle.ElementSet) (*LibSGP4Propagator, error) {
	parsed, err := sgp4.ParseTLE(es.Line1 + "\n" + es.Line2)
	if err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", es.NORADID, err)
	}
	if _, err := parsed.Initialize(); err != nil {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: %w", es.NORADID, err)
	}
	return &LibSGP4Propagator{elements: parsed, noradID: es.NORADID}, nil
}

// Propagate computes the TEME state (km, km/s) at t.
func (p *LibSGP4Propagator) Propagate(t time.Time) (PositionVelocity, error) {
	eci, err := p.elements.FindPositionAtTime(t)
	if err != nil {
		return PositionVelocity{}, fmt.Errorf("%w for NORAD %d: %v", ErrPropagation, p.noradID, err)
	}

	pos := geometry.Vec{X: eci.Position.X, Y: eci.Position.Y, Z: eci.Position.Z}
	vel := geometry.Vec{X: eci.Velocity.X, Y: eci.Velocity.Y, Z: eci.Velocity.Z}
	if err := checkState(p.noradID, pos, vel); err != nil {
		return PositionVelocity{}, err
	}
	return PositionVelocity{Time: t.UTC(), Position: pos, Velocity: vel}, nil
}
