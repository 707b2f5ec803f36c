package tle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/akhenakh/sgp4"
)

// earthRadiusKm is the SGP4 (WGS72) equatorial radius used to scale the
// recovered semi-major axis out of Earth radii.
const earthRadiusKm = 6378.135

var (
	// ErrInvalidElementSet is returned when a two-line element set fails
	// length, prefix, checksum or field validation.
	ErrInvalidElementSet = errors.New("invalid element set")
)

// ElementSet is one TLE snapshot for a satellite at a given epoch.
// It is a value type and is never mutated after construction.
type ElementSet struct {
	NORADID int       `json:"norad_id"`
	Name    string    `json:"name"`
	Epoch   time.Time `json:"epoch"`
	Line1   string    `json:"line1"`
	Line2   string    `json:"line2"`

	// Display-only scalars. The conjunction engine never reads these.
	SemiMajorAxisKm     float64 `json:"semi_major_axis_km"`
	Eccentricity        float64 `json:"eccentricity"`
	InclinationDeg      float64 `json:"inclination_deg"`
	RAANDeg             float64 `json:"raan_deg"`
	ArgPerigeeDeg       float64 `json:"arg_perigee_deg"`
	MeanAnomalyDeg      float64 `json:"mean_anomaly_deg"`
	MeanMotionRevPerDay float64 `json:"mean_motion_rev_per_day"`
	PeriodMinutes       float64 `json:"period_minutes"`
	ApogeeKm            float64 `json:"apogee_km"`
	PerigeeKm           float64 `json:"perigee_km"`
}

// NewElementSet validates a pair of TLE lines and returns the element set
// with its derived scalars filled in. An empty name is replaced by the
// NORAD catalog number.
func NewElementSet(name, line1, line2 string) (ElementSet, error) {
	line1 = strings.TrimRight(line1, "\r\n ")
	line2 = strings.TrimRight(line2, "\r\n ")

	parsed, err := sgp4.ParseTLE(line1 + "\n" + line2)
	if err != nil {
		return ElementSet{}, fmt.Errorf("%w: %v", ErrInvalidElementSet, err)
	}
	if parsed.MeanMotion <= 0 {
		return ElementSet{}, fmt.Errorf("%w: non-positive mean motion %g", ErrInvalidElementSet, parsed.MeanMotion)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strconv.Itoa(parsed.SatelliteNumber)
	}

	return fromParsed(parsed, name, line1, line2), nil
}

func fromParsed(p *sgp4.TLE, name, line1, line2 string) ElementSet {
	a := p.RecoveredSemiMajorAxis() * earthRadiusKm
	return ElementSet{
		NORADID: p.SatelliteNumber,
		Name:    name,
		Epoch:   p.EpochTime(),
		Line1:   line1,
		Line2:   line2,

		SemiMajorAxisKm:     a,
		Eccentricity:        p.Eccentricity,
		InclinationDeg:      p.Inclination,
		RAANDeg:             p.RightAscension,
		ArgPerigeeDeg:       p.ArgOfPerigee,
		MeanAnomalyDeg:      p.MeanAnomaly,
		MeanMotionRevPerDay: p.MeanMotion,
		PeriodMinutes:       1440.0 / p.MeanMotion,
		ApogeeKm:            a*(1+p.Eccentricity) - earthRadiusKm,
		PerigeeKm:           a*(1-p.Eccentricity) - earthRadiusKm,
	}
}

// EpochRange represents the minimum and maximum epoch times in a list of
// element sets.
type EpochRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// Range returns the epoch range of sets. The zero value is returned for an
// empty list.
func Range(sets []ElementSet) EpochRange {
	var r EpochRange
	for i, s := range sets {
		if i == 0 || s.Epoch.Before(r.Min) {
			r.Min = s.Epoch
		}
		if i == 0 || s.Epoch.After(r.Max) {
			r.Max = s.Epoch
		}
	}
	return r
}
