// Package geometry provides the small set of 3-vector operations the
// conjunction engine needs, on top of md3.Vec.
//
// All vectors are Earth-centered inertial coordinates in kilometres unless a
// caller says otherwise.
package geometry

import (
	"math"

	"github.com/soypat/geometry/md3"
)

// Vec is an alias so callers don't need to import md3 directly.
type Vec = md3.Vec

// Sub returns a - b.
func Sub(a, b Vec) Vec { return md3.Sub(a, b) }

// Add returns a + b.
func Add(a, b Vec) Vec { return md3.Add(a, b) }

// Scale returns f*v.
func Scale(f float64, v Vec) Vec { return md3.Scale(f, v) }

// Dot returns the dot product of a and b.
func Dot(a, b Vec) float64 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

// Norm returns the Euclidean length of v.
func Norm(v Vec) float64 { return md3.Norm(v) }

// Distance returns |a - b|.
func Distance(a, b Vec) float64 { return md3.Norm(md3.Sub(a, b)) }

// Normalize returns v scaled to unit length. The zero vector is returned unchanged.
func Normalize(v Vec) Vec {
	n := md3.Norm(v)
	if n == 0 {
		return v
	}
	return md3.Scale(1/n, v)
}

// AngleBetween returns the angle between a and b in radians, in [0, pi].
// Returns 0 when either vector has zero length.
func AngleBetween(a, b Vec) float64 {
	na, nb := md3.Norm(a), md3.Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	c := Dot(a, b) / (na * nb)
	// Rounding can push |c| slightly past 1 for (anti)parallel vectors.
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c)
}

// SegmentApproach describes the closest approach of the line through A and B
// to the origin.
type SegmentApproach struct {
	// T is the line parameter of the closest point, P = A + T*(B-A).
	// T in (0, 1) lies strictly between A and B; T > 1 is beyond B.
	T float64
	// Point is the closest point on the infinite line.
	Point Vec
	// LineDistance is |Point|.
	LineDistance float64
	// SegmentDistance is the distance from the origin to the closest point
	// of the segment itself, with T clamped to [0, 1].
	SegmentDistance float64
}

// ClosestPointToOrigin returns the approach of segment a->b to the origin.
// A degenerate segment (a == b) reports T = 0 and the distance of a.
func ClosestPointToOrigin(a, b Vec) SegmentApproach {
	d := md3.Sub(b, a)
	dd := Dot(d, d)
	if dd == 0 {
		n := md3.Norm(a)
		return SegmentApproach{T: 0, Point: a, LineDistance: n, SegmentDistance: n}
	}

	t := -Dot(a, d) / dd
	p := md3.Add(a, md3.Scale(t, d))

	tc := math.Max(0, math.Min(1, t))
	seg := md3.Add(a, md3.Scale(tc, d))

	return SegmentApproach{
		T:               t,
		Point:           p,
		LineDistance:    md3.Norm(p),
		SegmentDistance: md3.Norm(seg),
	}
}
