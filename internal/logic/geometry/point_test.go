package geometry

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func TestDistanceSquared(t *testing.T) {
	cases := []struct {
		name   string
		p1, p2 Point
		want   float64
	}{
		{"same_point", Pt(1, 1), Pt(1, 1), 0},
		{"unit_x", Pt(0, 0), Pt(1, 0), 1},
		{"three_four_five", Pt(0, 0), Pt(3, 4), 25},
		{"negative_coords", Pt(-1, -1), Pt(1, 1), 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DistanceSquared(tc.p1, tc.p2); math.Abs(got-tc.want) > epsilon {
				t.Errorf("DistanceSquared(%v, %v) = %v, want %v", tc.p1, tc.p2, got, tc.want)
			}
		})
	}
}

func TestDistance_IsSqrtOfSquared(t *testing.T) {
	p1, p2 := Pt(2, 3), Pt(7, 15)
	if got := Distance(p1, p2); math.Abs(got-13) > epsilon {
		t.Errorf("Distance = %v, want 13", got)
	}
}

func TestMidpoint(t *testing.T) {
	got := Midpoint(Pt(0, 0), Pt(4, -2))
	if got != Pt(2, -1) {
		t.Errorf("Midpoint = %v, want (2,-1)", got)
	}
}

func TestCentroid(t *testing.T) {
	q := [4]Point{Pt(0, 0), Pt(4, 0), Pt(4, 2), Pt(0, 2)}
	if got := Centroid(q); got != Pt(2, 1) {
		t.Errorf("Centroid = %v, want (2,1)", got)
	}
}

func TestIsParallelogram_ExactShapes(t *testing.T) {
	cases := []struct {
		name string
		q    [4]Point
		want bool
	}{
		{"square_in_order", [4]Point{Pt(0, 0), Pt(1, 0), Pt(1, 1), Pt(0, 1)}, true},
		{"square_shuffled", [4]Point{Pt(1, 1), Pt(0, 0), Pt(0, 1), Pt(1, 0)}, true},
		{"rectangle", [4]Point{Pt(10, 10), Pt(110, 10), Pt(10, 60), Pt(110, 60)}, true},
		{"slanted", [4]Point{Pt(0, 0), Pt(4, 0), Pt(5, 3), Pt(1, 3)}, true},
		{"kite", [4]Point{Pt(0, 0), Pt(2, 1), Pt(0, 5), Pt(-2, 1)}, false},
		{"trapezoid", [4]Point{Pt(0, 0), Pt(6, 0), Pt(4, 2), Pt(2, 2)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsParallelogram(tc.q, 0); got != tc.want {
				t.Errorf("IsParallelogram(%v, 0) = %v, want %v", tc.q, got, tc.want)
			}
		})
	}
}

func TestIsParallelogram_ToleranceAbsorbsNoise(t *testing.T) {
	// Corner (100,50) is off by 1px in x: diagonal midpoints differ by 0.5px → 0.25px².
	q := [4]Point{Pt(0, 0), Pt(100, 0), Pt(101, 50), Pt(0, 50)}

	if IsParallelogram(q, 0.2) {
		t.Error("tolerance 0.2 should reject a 0.25px² midpoint gap")
	}
	if !IsParallelogram(q, 0.25) {
		t.Error("tolerance 0.25 should accept a 0.25px² midpoint gap (inclusive)")
	}
}

func TestIsParallelogram_CoincidentPoints(t *testing.T) {
	// Degenerate input must not panic; two pairs of identical points are a zero-area parallelogram.
	q := [4]Point{Pt(1, 1), Pt(1, 1), Pt(3, 3), Pt(3, 3)}
	if !IsParallelogram(q, 0) {
		t.Error("expected degenerate parallelogram to pass")
	}
}
