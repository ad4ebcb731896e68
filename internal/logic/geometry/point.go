package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Point is a blob center in image pixel coordinates.
// It is an orb.Point, so it compares with == and encodes to JSON as [x, y].
type Point = orb.Point

// PointSet holds the points detected in one frame, in detection order.
// Order carries no identity.
type PointSet []Point

// Pt builds a Point from its coordinates.
func Pt(x, y float64) Point {
	return Point{x, y}
}

// DistanceSquared returns the squared Euclidean distance between two points.
func DistanceSquared(p1, p2 Point) float64 {
	return planar.DistanceSquared(p1, p2)
}

// Distance returns the Euclidean distance between two points.
func Distance(p1, p2 Point) float64 {
	return planar.Distance(p1, p2)
}

// Midpoint returns the point halfway between p1 and p2.
func Midpoint(p1, p2 Point) Point {
	return Point{(p1[0] + p2[0]) / 2, (p1[1] + p2[1]) / 2}
}

// Centroid returns the arithmetic mean of four points.
func Centroid(q [4]Point) Point {
	var x, y float64
	for _, p := range q {
		x += p[0]
		y += p[1]
	}
	return Point{x / 4, y / 4}
}

// pairings lists the three ways to split four corners into two pairs.
// For a parallelogram one of them pairs the diagonals.
var pairings = [3][4]int{
	{0, 1, 2, 3},
	{0, 2, 1, 3},
	{0, 3, 1, 2},
}

// IsParallelogram reports whether four unordered points form a parallelogram.
// The diagonals of a parallelogram bisect each other, so for one of the three
// pairings the two midpoints coincide. tolerance is a squared distance in
// pixels² that absorbs detection noise.
func IsParallelogram(q [4]Point, tolerance float64) bool {
	for _, pr := range pairings {
		m1 := Midpoint(q[pr[0]], q[pr[1]])
		m2 := Midpoint(q[pr[2]], q[pr[3]])
		if DistanceSquared(m1, m2) <= tolerance {
			return true
		}
	}
	return false
}
