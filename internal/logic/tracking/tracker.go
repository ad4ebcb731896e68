package tracking

import (
	"time"

	"github.com/cjeanneret/BeamGo/internal/debug"
	"github.com/cjeanneret/BeamGo/internal/logic/geometry"
	"github.com/cjeanneret/BeamGo/internal/timeutil"
)

// Trace is the recorded receiver-to-spot distance over time.
// Elapsed and Distance are parallel: Elapsed[i] seconds after the storage
// origin, the spot was Distance[i] pixels from the receiver center.
type Trace struct {
	Elapsed  []float64 `json:"elapsed_s"`
	Distance []float64 `json:"distance_px"`
}

// Len returns the number of samples.
func (t Trace) Len() int { return len(t.Elapsed) }

// Tracker keeps the last known correspondence between frames.
// A frame that does not resolve leaves the previous positions in place, so a
// single bad frame does not reset control.
type Tracker struct {
	resolver *Resolver
	clock    timeutil.Clock

	corr   Correspondence
	locked bool
	frames int

	origin time.Time
	trace  Trace
}

// NewTracker creates a tracker that resolves frames with r.
func NewTracker(r *Resolver, clock timeutil.Clock) *Tracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Tracker{
		resolver: r,
		clock:    clock,
		origin:   clock.Now(),
	}
}

// Update resolves points and, on success, replaces the stored correspondence.
// A distance sample is appended only if a laser spot was already known before
// this update. Returns whether the frame resolved.
func (t *Tracker) Update(points geometry.PointSet) bool {
	t.frames++

	corr, ok := t.resolver.Resolve(points)
	if !ok {
		debug.Verbose("Tracker: frame %d did not resolve, keeping last positions", t.frames)
		return false
	}

	hadSpot := t.locked
	t.corr = corr
	if !t.locked {
		debug.Info("Tracker: locked receiver=%v spot=%v", corr.Receiver, corr.LaserSpot)
	}
	t.locked = true

	if hadSpot {
		t.trace.Elapsed = append(t.trace.Elapsed, t.clock.Since(t.origin).Seconds())
		t.trace.Distance = append(t.trace.Distance, geometry.Distance(corr.Receiver, corr.LaserSpot))
	}

	debug.Verbose("Tracker: receiver=%v spot=%v", corr.Receiver, corr.LaserSpot)
	return true
}

// Positions returns the setpoint (receiver center) and the process variable
// (laser spot) from the last successful update. ok is false until the first
// frame resolves; callers must not act on the zero points in that case.
func (t *Tracker) Positions() (setpoint, processVariable geometry.Point, ok bool) {
	if !t.locked {
		return geometry.Point{}, geometry.Point{}, false
	}
	return t.corr.Receiver, t.corr.LaserSpot, true
}

// Correspondence returns the last correspondence and whether one exists.
func (t *Tracker) Correspondence() (Correspondence, bool) {
	return t.corr, t.locked
}

// Locked reports whether any frame has resolved yet.
func (t *Tracker) Locked() bool {
	return t.locked
}

// Frames returns how many frames were passed to Update.
func (t *Tracker) Frames() int {
	return t.frames
}

// ResetStorage restarts the elapsed-time origin and clears the trace.
// The correspondence is kept.
func (t *Tracker) ResetStorage() {
	t.origin = t.clock.Now()
	t.trace = Trace{}
}

// Trace returns a copy of the recorded samples.
func (t *Tracker) Trace() Trace {
	out := Trace{
		Elapsed:  make([]float64, len(t.trace.Elapsed)),
		Distance: make([]float64, len(t.trace.Distance)),
	}
	copy(out.Elapsed, t.trace.Elapsed)
	copy(out.Distance, t.trace.Distance)
	return out
}
