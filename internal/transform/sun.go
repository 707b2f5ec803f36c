package transform

import (
	"math"
	"time"

	"github.com/kvsankar/sattosat/internal/geometry"
	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/solar"
)

// AUKm is one astronomical unit in km.
const AUKm = 1.495978707e8

// SunPosition returns the geocentric position of the Sun in km in an
// equator-of-date inertial frame, close enough to TEME for phase angles.
func SunPosition(t time.Time) geometry.Vec {
	jd := julian.TimeToJD(t.UTC())
	ra, dec := solar.ApparentEquatorial(jd)
	r := solar.Radius(base.J2000Century(jd)) * AUKm

	cosDec := math.Cos(dec.Rad())
	return geometry.Vec{
		X: r * cosDec * math.Cos(ra.Rad()),
		Y: r * cosDec * math.Sin(ra.Rad()),
		Z: r * math.Sin(dec.Rad()),
	}
}
