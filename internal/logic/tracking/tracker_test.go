package tracking

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/BeamGo/internal/logic/geometry"
	"github.com/cjeanneret/BeamGo/internal/timeutil"
)

// square with side 10 centred on (5,5) plus a spot.
func frameWithSpot(spot geometry.Point) geometry.PointSet {
	return geometry.PointSet{pt(0, 0), pt(10, 0), pt(10, 10), pt(0, 10), spot}
}

func newTestTracker(t *testing.T) (*Tracker, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewTracker(NewResolver(0.01), clock), clock
}

func TestTracker_PositionsBeforeLock(t *testing.T) {
	tr, _ := newTestTracker(t)

	_, _, ok := tr.Positions()
	assert.False(t, ok)
	assert.False(t, tr.Locked())

	_, ok = tr.Correspondence()
	assert.False(t, ok)
}

func TestTracker_UpdateSetsPositions(t *testing.T) {
	tr, _ := newTestTracker(t)

	require.True(t, tr.Update(frameWithSpot(pt(8, 5))))
	sp, pv, ok := tr.Positions()
	require.True(t, ok)
	assert.Equal(t, pt(5, 5), sp)
	assert.Equal(t, pt(8, 5), pv)
	assert.Equal(t, 1, tr.Frames())
}

func TestTracker_FailedUpdateKeepsPositions(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.True(t, tr.Update(frameWithSpot(pt(8, 5))))

	// Four points, then a general-position frame: neither resolves.
	assert.False(t, tr.Update(geometry.PointSet{pt(0, 0), pt(10, 0), pt(10, 10), pt(0, 10)}))
	assert.False(t, tr.Update(geometry.PointSet{pt(0, 0), pt(10, 1), pt(3, 17), pt(25, 8), pt(14, 30)}))

	sp, pv, ok := tr.Positions()
	require.True(t, ok)
	assert.Equal(t, pt(5, 5), sp)
	assert.Equal(t, pt(8, 5), pv)
	assert.Equal(t, 3, tr.Frames())
	assert.Equal(t, 0, tr.Trace().Len(), "failed frames add no samples")
}

func TestTracker_TraceRecordsOnlyAfterPriorLock(t *testing.T) {
	tr, clock := newTestTracker(t)

	clock.Advance(100 * time.Millisecond)
	require.True(t, tr.Update(frameWithSpot(pt(8, 5))))
	assert.Equal(t, 0, tr.Trace().Len(), "first lock has no prior spot")

	clock.Advance(400 * time.Millisecond)
	require.True(t, tr.Update(frameWithSpot(pt(5, 9))))

	clock.Advance(500 * time.Millisecond)
	require.True(t, tr.Update(frameWithSpot(pt(5, 2))))

	want := Trace{
		Elapsed:  []float64{0.5, 1.0},
		Distance: []float64{4, 3},
	}
	if diff := cmp.Diff(want, tr.Trace()); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestTracker_ResetStorage(t *testing.T) {
	tr, clock := newTestTracker(t)
	require.True(t, tr.Update(frameWithSpot(pt(8, 5))))
	clock.Advance(time.Second)
	require.True(t, tr.Update(frameWithSpot(pt(8, 5))))
	require.Equal(t, 1, tr.Trace().Len())

	clock.Advance(2 * time.Second)
	tr.ResetStorage()
	assert.Equal(t, 0, tr.Trace().Len())

	// Correspondence survives the reset.
	_, pv, ok := tr.Positions()
	require.True(t, ok)
	assert.Equal(t, pt(8, 5), pv)

	clock.Advance(250 * time.Millisecond)
	require.True(t, tr.Update(frameWithSpot(pt(5, 5))))
	got := tr.Trace()
	require.Equal(t, 1, got.Len())
	assert.InDelta(t, 0.25, got.Elapsed[0], 1e-9)
	assert.InDelta(t, 0, got.Distance[0], 1e-9)
}

func TestTracker_TraceIsACopy(t *testing.T) {
	tr, clock := newTestTracker(t)
	require.True(t, tr.Update(frameWithSpot(pt(8, 5))))
	clock.Advance(time.Second)
	require.True(t, tr.Update(frameWithSpot(pt(8, 5))))

	got := tr.Trace()
	got.Distance[0] = 99
	assert.Equal(t, 3.0, tr.Trace().Distance[0])
}
