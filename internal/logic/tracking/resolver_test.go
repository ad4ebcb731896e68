package tracking

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/BeamGo/internal/logic/geometry"
)

var pt = geometry.Pt

func TestResolve_ExactParallelogramPlusSpot(t *testing.T) {
	cases := []struct {
		name     string
		quad     [4]geometry.Point
		spot     geometry.Point
		spotAt   int
		receiver geometry.Point
	}{
		{"rectangle_spot_last", [4]geometry.Point{pt(100, 100), pt(300, 100), pt(300, 200), pt(100, 200)}, pt(180, 140), 4, pt(200, 150)},
		{"rectangle_spot_first", [4]geometry.Point{pt(100, 100), pt(300, 100), pt(300, 200), pt(100, 200)}, pt(180, 140), 0, pt(200, 150)},
		{"slanted_spot_middle", [4]geometry.Point{pt(0, 0), pt(40, 0), pt(52, 28), pt(12, 28)}, pt(500, 500), 2, pt(26, 14)},
		{"spot_outside_receiver", [4]geometry.Point{pt(10, 10), pt(20, 10), pt(20, 20), pt(10, 20)}, pt(900, 10), 3, pt(15, 15)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			points := make(geometry.PointSet, 0, 5)
			points = append(points, tc.quad[:]...)
			points = append(points[:tc.spotAt], append(geometry.PointSet{tc.spot}, points[tc.spotAt:]...)...)

			corr, ok := NewResolver(0).Resolve(points)
			require.True(t, ok, "expected a correspondence for %v", points)
			assert.Equal(t, tc.spot, corr.LaserSpot)
			assert.Equal(t, tc.receiver, corr.Receiver)
			assert.Equal(t, geometry.Centroid(tc.quad), corr.Receiver)
		})
	}
}

func TestResolve_GeneralPositionReturnsNone(t *testing.T) {
	// Best midpoint gap over all 4-subsets is 13px².
	points := geometry.PointSet{pt(0, 0), pt(10, 1), pt(3, 17), pt(25, 8), pt(14, 30)}

	_, ok := NewResolver(1.0).Resolve(points)
	assert.False(t, ok)

	_, ok = NewResolver(13.0).Resolve(points)
	assert.True(t, ok, "tolerance equal to the gap is inclusive")
}

func TestResolve_TooFewPoints(t *testing.T) {
	r := NewResolver(1e6)
	for n := 0; n <= 4; n++ {
		points := geometry.PointSet{pt(0, 0), pt(1, 0), pt(1, 1), pt(0, 1)}[:n]
		_, ok := r.Resolve(points)
		assert.False(t, ok, "n=%d", n)
	}
}

func TestResolve_PermutationInvariantForUniqueParallelogram(t *testing.T) {
	base := geometry.PointSet{pt(120, 80), pt(320, 80), pt(320, 230), pt(120, 230), pt(201, 163)}
	want, ok := NewResolver(0.5).Resolve(base)
	require.True(t, ok)
	require.Equal(t, pt(201, 163), want.LaserSpot)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		shuffled := append(geometry.PointSet(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, ok := NewResolver(0.5).Resolve(shuffled)
		require.True(t, ok, "permutation %v", shuffled)
		assert.Equal(t, want, got, "permutation %v", shuffled)
	}
}

func TestResolve_FirstMatchNotBestFit(t *testing.T) {
	// {A,B,C,D} is a square and {A,B,E,D} is a parallelogram too.
	a, b, c, d, e := pt(0, 0), pt(2, 0), pt(0, 2), pt(2, 2), pt(4, 2)

	corr, ok := NewResolver(0).Resolve(geometry.PointSet{a, b, c, d, e})
	require.True(t, ok)
	assert.Equal(t, pt(1, 1), corr.Receiver)
	assert.Equal(t, e, corr.LaserSpot)

	corr, ok = NewResolver(0).Resolve(geometry.PointSet{e, a, b, c, d})
	require.True(t, ok)
	assert.Equal(t, pt(2, 1), corr.Receiver)
	assert.Equal(t, c, corr.LaserSpot)
}

// Regression case {(0,1),(0,1.1),(1,0),(0,0),(1,1)}: the outcome depends on
// the tolerance because (0,1) and (0,1.1) are near-duplicates.
func TestResolve_NearDuplicateRegression(t *testing.T) {
	points := geometry.PointSet{pt(0, 1), pt(0, 1.1), pt(1, 0), pt(0, 0), pt(1, 1)}

	cases := []struct {
		name      string
		tolerance float64
		receiver  geometry.Point
		spot      geometry.Point
	}{
		// Operating value: the unit square {0,2,3,4} wins, near-duplicate is the spot.
		{"operating_0.01", 0.01, pt(0.5, 0.5), pt(0, 1.1)},
		{"exact_0", 0, pt(0.5, 0.5), pt(0, 1.1)},
		// Loose enough for subset {0,1,2,4} (gap 0.2025).
		{"loose_0.21", 0.21, pt(0.5, 0.775), pt(0, 0)},
		// Loose enough for the very first subset {0,1,2,3} (gap 0.2525).
		{"looser_0.3", 0.3, pt(0.25, 0.525), pt(1, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			corr, ok := NewResolver(tc.tolerance).Resolve(points)
			require.True(t, ok)
			assert.InDelta(t, tc.receiver.X(), corr.Receiver.X(), 1e-9)
			assert.InDelta(t, tc.receiver.Y(), corr.Receiver.Y(), 1e-9)
			assert.Equal(t, tc.spot, corr.LaserSpot)
		})
	}
}

func TestResolve_DuplicateSpotCoordinates(t *testing.T) {
	// The spot sits exactly on a corner; identity is by index, not by value.
	points := geometry.PointSet{pt(0, 0), pt(4, 0), pt(4, 4), pt(0, 4), pt(0, 0)}
	corr, ok := NewResolver(0).Resolve(points)
	require.True(t, ok)
	assert.Equal(t, pt(2, 2), corr.Receiver)
	assert.Equal(t, pt(0, 0), corr.LaserSpot)
}

func TestResolver_ToleranceBoundary(t *testing.T) {
	// Diagonal midpoints are 0.1px apart, a squared distance of 0.01px².
	points := geometry.PointSet{pt(0, 0), pt(10, 0), pt(10.2, 10), pt(0, 10), pt(50, 50)}

	strict := NewResolver(0.005)
	assert.Equal(t, 0.005, strict.Tolerance())
	_, ok := strict.Resolve(points)
	assert.False(t, ok)

	loose := NewResolver(0.02)
	assert.Equal(t, 0.02, loose.Tolerance())
	_, ok = loose.Resolve(points)
	assert.True(t, ok)
}
