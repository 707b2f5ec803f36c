package transform

import (
	"math"
	"time"

	"github.com/kvsankar/sattosat/internal/geometry"
)

// WGS84 ellipsoid.
const (
	EarthRadiusKm = 6378.137
	flattening    = 1.0 / 298.257223563
)

// Geodetic is a point on or above the WGS84 ellipsoid.
type Geodetic struct {
	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`
	AltKm  float64 `json:"alt_km"`
}

// ECEFToGeodetic converts an ECEF position in km to geodetic latitude,
// longitude and altitude by fixed-point iteration on latitude.
func ECEFToGeodetic(pos geometry.Vec) Geodetic {
	e2 := flattening * (2 - flattening)
	p := math.Hypot(pos.X, pos.Y)
	lon := math.Atan2(pos.Y, pos.X)

	if p < 1e-9 {
		b := EarthRadiusKm * (1 - flattening)
		lat := math.Copysign(math.Pi/2, pos.Z)
		return Geodetic{LatDeg: lat * 180 / math.Pi, LonDeg: 0, AltKm: math.Abs(pos.Z) - b}
	}

	lat := math.Atan2(pos.Z, p*(1-e2))
	var n float64
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n = EarthRadiusKm / math.Sqrt(1-e2*sinLat*sinLat)
		lat = math.Atan2(pos.Z+e2*n*sinLat, p)
	}
	sinLat := math.Sin(lat)
	n = EarthRadiusKm / math.Sqrt(1-e2*sinLat*sinLat)
	alt := p/math.Cos(lat) - n

	return Geodetic{
		LatDeg: lat * 180 / math.Pi,
		LonDeg: lon * 180 / math.Pi,
		AltKm:  alt,
	}
}

// SubPoint returns the geodetic point beneath a TEME position at time t.
func SubPoint(pos geometry.Vec, t time.Time) Geodetic {
	ecef, _ := temeToECEF(pos, geometry.Vec{}, t)
	return ECEFToGeodetic(ecef)
}
