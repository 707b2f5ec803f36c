// Package transform provides the coordinate frame conversions used around the
// conjunction engine.
//
// Propagators output positions in TEME (True Equator Mean Equinox). Distances
// and the Earth/Sun geometry are frame-invariant as long as every vector is in
// the same inertial frame, so TEME is used throughout the engine and ECEF is
// only needed for sub-satellite points and altitude reporting.
//
// Method: simplified Vallado-style rotation using GMST only (TEME -> PEF ~ ECEF).
// Polar motion and the equation of the equinoxes are ignored.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"

	"github.com/kvsankar/sattosat/internal/geometry"
)

// temeToECEF rotates a TEME position/velocity into ECEF at the given UTC time.
// Units are preserved (km and km/s in, km and km/s out).
func temeToECEF(pos, vel geometry.Vec, t time.Time) (geometry.Vec, geometry.Vec) {
	return TEMEToECEFWithGMST(pos, vel, GMST(t))
}

// TEMEToECEFWithGMST transforms TEME to ECEF using a precomputed GMST angle (radians).
//
// Position transform: r_ECEF = R3(θ) * r_TEME
// Velocity transform: v_ECEF = R3(θ) * v_TEME - ω × r_ECEF
func TEMEToECEFWithGMST(pos, vel geometry.Vec, gmst float64) (geometry.Vec, geometry.Vec) {
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)

	r := geometry.Vec{
		X: pos.X*cosG + pos.Y*sinG,
		Y: -pos.X*sinG + pos.Y*cosG,
		Z: pos.Z,
	}

	// ω × r_ECEF = [-ω*y, ω*x, 0]
	v := geometry.Vec{
		X: vel.X*cosG + vel.Y*sinG + OmegaEarth*r.Y,
		Y: -vel.X*sinG + vel.Y*cosG - OmegaEarth*r.X,
		Z: vel.Z,
	}
	return r, v
}

// Radius bounds, in km, for a position to be treated as a plausible Earth orbit.
const (
	MinOrbitRadiusKm = 6200.0
	MaxOrbitRadiusKm = 50000.0
)

// ValidOrbitRadius reports whether pos (km) is finite and lies within
// [MinOrbitRadiusKm, MaxOrbitRadiusKm] of the geocenter.
func ValidOrbitRadius(pos geometry.Vec) bool {
	for _, c := range [3]float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	mag := geometry.Norm(pos)
	return mag >= MinOrbitRadiusKm && mag <= MaxOrbitRadiusKm
}
