// Package tracking identifies the receiver and the laser spot among the
// unlabelled blobs of a frame and carries that identification across frames.
package tracking

import (
	"github.com/cjeanneret/BeamGo/internal/logic/geometry"
)

// Correspondence pairs the receiver center (centroid of the four corner
// markers) with the laser spot (the remaining blob). Both are always set
// together.
type Correspondence struct {
	Receiver  geometry.Point `json:"receiver"`
	LaserSpot geometry.Point `json:"laser_spot"`
}

// Resolver finds which four detected points form the receiver parallelogram.
type Resolver struct {
	tolerance float64
}

// NewResolver creates a resolver. tolerance is the squared midpoint distance
// (pixels²) under which four points still count as a parallelogram.
func NewResolver(tolerance float64) *Resolver {
	return &Resolver{tolerance: tolerance}
}

// Tolerance returns the configured squared-distance tolerance.
func (r *Resolver) Tolerance() float64 {
	return r.tolerance
}

// Resolve returns the correspondence for points, or false if none exists.
//
// Four-point subsets are enumerated by index in lexicographic order
// (0123, 0124, 0134, 0234, 1234 for five points) and the FIRST subset that
// passes the parallelogram test wins. There is no best-fit search: when two
// subsets pass, input order decides. The laser spot is the first input point,
// by index, outside the winning subset.
//
// Fewer than five points cannot yield both a receiver and a spot, so they
// never resolve.
func (r *Resolver) Resolve(points geometry.PointSet) (Correspondence, bool) {
	n := len(points)
	if n < 5 {
		return Correspondence{}, false
	}

	for a := 0; a < n-3; a++ {
		for b := a + 1; b < n-2; b++ {
			for c := b + 1; c < n-1; c++ {
				for d := c + 1; d < n; d++ {
					quad := [4]geometry.Point{points[a], points[b], points[c], points[d]}
					if !geometry.IsParallelogram(quad, r.tolerance) {
						continue
					}
					return Correspondence{
						Receiver:  geometry.Centroid(quad),
						LaserSpot: points[firstOutside(n, a, b, c, d)],
					}, true
				}
			}
		}
	}
	return Correspondence{}, false
}

// firstOutside returns the lowest index in [0,n) not among the subset indices.
func firstOutside(n int, subset ...int) int {
	for i := 0; i < n; i++ {
		in := false
		for _, s := range subset {
			if s == i {
				in = true
				break
			}
		}
		if !in {
			return i
		}
	}
	return -1
}
