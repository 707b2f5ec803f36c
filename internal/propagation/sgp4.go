package propagation

import (
	"fmt"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/kvsankar/sattosat/internal/geometry"
	"github.com/kvsankar/sattosat/internal/tle"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Propagate() takes whole seconds and the Satellite by value, so SGP4 error
// codes are not visible to the caller. Failures are detected by checking the
// output for NaN/Inf and unreasonable position magnitudes. Sub-second
// instants are reconstructed by cubic Hermite interpolation between the two
// bracketing whole-second states, which is exact to well under a millimetre
// for Earth orbits.

// SGP4Propagator wraps the go-satellite library for a single element set.
type SGP4Propagator struct {
	sat     satellite.Satellite
	noradID int
}

// NewSGP4Propagator creates an SGP4 propagator from an element set.
// Returns an error if the TLE cannot be parsed or the SGP4 model fails to initialize.
//
// Pre-validates TLE format before passing to the library, because go-satellite
// calls log.Fatal on malformed input (which would kill the process).
func NewSGP4Propagator(es tle.ElementSet) (*SGP4Propagator, error) {
	if err := validateTLELines(es.Line1, es.Line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", es.NORADID, err)
	}

	sat := satellite.TLEToSat(es.Line1, es.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", es.NORADID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, noradID: es.NORADID}, nil
}

// validateTLELines performs basic format validation on TLE lines.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// Propagate computes the TEME state (km, km/s) at t.
func (p *SGP4Propagator) Propagate(t time.Time) (PositionVelocity, error) {
	t = t.UTC()
	t0 := t.Truncate(time.Second)

	pos0, vel0, err := p.whole(t0)
	if err != nil {
		return PositionVelocity{}, err
	}
	if t0.Equal(t) {
		return PositionVelocity{Time: t, Position: pos0, Velocity: vel0}, nil
	}

	pos1, vel1, err := p.whole(t0.Add(time.Second))
	if err != nil {
		return PositionVelocity{}, err
	}

	s := t.Sub(t0).Seconds()
	pos, vel := hermite(pos0, vel0, pos1, vel1, 1.0, s)
	return PositionVelocity{Time: t, Position: pos, Velocity: vel}, nil
}

func (p *SGP4Propagator) whole(t time.Time) (geometry.Vec, geometry.Vec, error) {
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	r := geometry.Vec{X: pos.X, Y: pos.Y, Z: pos.Z}
	v := geometry.Vec{X: vel.X, Y: vel.Y, Z: vel.Z}
	if err := checkState(p.noradID, r, v); err != nil {
		return geometry.Vec{}, geometry.Vec{}, err
	}
	return r, v, nil
}

// hermite interpolates a state at offset s within [0, h] seconds from the
// endpoint positions and velocities.
func hermite(p0, v0, p1, v1 geometry.Vec, h, s float64) (geometry.Vec, geometry.Vec) {
	u := s / h
	u2, u3 := u*u, u*u*u

	h00 := 2*u3 - 3*u2 + 1
	h10 := u3 - 2*u2 + u
	h01 := -2*u3 + 3*u2
	h11 := u3 - u2

	pos := geometry.Add(
		geometry.Add(geometry.Scale(h00, p0), geometry.Scale(h10*h, v0)),
		geometry.Add(geometry.Scale(h01, p1), geometry.Scale(h11*h, v1)),
	)

	d00 := (6*u2 - 6*u) / h
	d10 := 3*u2 - 4*u + 1
	d01 := (-6*u2 + 6*u) / h
	d11 := 3*u2 - 2*u

	vel := geometry.Add(
		geometry.Add(geometry.Scale(d00, p0), geometry.Scale(d10, v0)),
		geometry.Add(geometry.Scale(d01, p1), geometry.Scale(d11, v1)),
	)
	return pos, vel
}
