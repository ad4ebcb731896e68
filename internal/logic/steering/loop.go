// Package steering runs the closed control loop: frames in, motor commands out.
package steering

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cjeanneret/BeamGo/internal/debug"
	"github.com/cjeanneret/BeamGo/internal/hw/camera"
	"github.com/cjeanneret/BeamGo/internal/logic/geometry"
	"github.com/cjeanneret/BeamGo/internal/logic/tracking"
	"github.com/cjeanneret/BeamGo/internal/timeutil"
)

// ErrStreamEnded is returned by Run when the frame source ends before the
// frame budget is used up.
var ErrStreamEnded = errors.New("steering: frame stream ended")

// Blob counts the loop reacts to.
const (
	fullFrame    = 5 // four receiver corners + laser spot
	partialFrame = 4 // laser spot lost
)

// State of the control loop.
type State int

const (
	// Acquiring feeds the tracker without moving the motors.
	Acquiring State = iota
	// Tracking drives the motors from the tracker. There is no way back.
	Tracking
)

func (s State) String() string {
	switch s {
	case Acquiring:
		return "acquiring"
	case Tracking:
		return "tracking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Feedback is one axis controller. The output is the target angle.
type Feedback interface {
	SetSetpoint(sp float64)
	Evaluate(pv float64) float64
	Reset()
}

// Axes is the motor pair. Each Move call includes the pacing delay.
type Axes interface {
	MoveHorizontal(angle float64) error
	MoveVertical(angle float64) error
	Shutdown() error
}

// Config holds the loop limits.
type Config struct {
	// WarmupFrames is the number of frames spent Acquiring. 0 starts Tracking.
	WarmupFrames int
	// FrameBudget caps the frames processed by Run. 0 means no cap.
	FrameBudget int
}

// Result summarizes one Run.
type Result struct {
	Frames   int            `json:"frames"`
	Commands int            `json:"commands"`
	Elapsed  time.Duration  `json:"elapsed_ns"`
	FPS      float64        `json:"fps"`
	State    State          `json:"state"`
	Trace    tracking.Trace `json:"trace"`
}

// Loop is the per-frame state machine. A Loop serves a single run.
type Loop struct {
	cfg        Config
	tracker    *tracking.Tracker
	axes       Axes
	horizontal Feedback
	vertical   Feedback
	clock      timeutil.Clock

	state     State
	frames    int
	commands  int
	prevCount int
	prevSP    geometry.Point
	prevPV    geometry.Point
	hasPrev   bool
}

// NewLoop wires the loop collaborators. A nil clock uses the wall clock.
func NewLoop(cfg Config, tracker *tracking.Tracker, axes Axes, horizontal, vertical Feedback, clock timeutil.Clock) *Loop {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	l := &Loop{
		cfg:        cfg,
		tracker:    tracker,
		axes:       axes,
		horizontal: horizontal,
		vertical:   vertical,
		clock:      clock,
		state:      Acquiring,
	}
	if cfg.WarmupFrames <= 0 {
		l.state = Tracking
	}
	return l
}

// State returns the current state.
func (l *Loop) State() State { return l.state }

// Frames returns how many frames Step has processed.
func (l *Loop) Frames() int { return l.frames }

// Commands returns how many frames produced a motor command.
func (l *Loop) Commands() int { return l.commands }

// Step processes one frame and reports whether the motors were commanded.
//
// While Acquiring, five-blob frames only update the tracker. Once the frame
// count reaches the warm-up, the loop switches to Tracking and resets both
// feedback controllers; that frame does not command.
//
// While Tracking:
//   - five blobs: update the tracker and command from its positions;
//   - four blobs right after a five-blob frame: command again from the
//     remembered positions of that frame;
//   - anything else: no command.
func (l *Loop) Step(points geometry.PointSet) (bool, error) {
	l.frames++
	n := len(points)
	debug.Frame(l.frames, n, l.state)

	if l.state == Acquiring {
		if n == fullFrame {
			l.tracker.Update(points)
		}
		if l.frames >= l.cfg.WarmupFrames {
			l.enterTracking()
		}
		return false, nil
	}

	switch {
	case n == fullFrame:
		l.tracker.Update(points)
		sp, pv, ok := l.tracker.Positions()
		l.prevCount = n
		if !ok {
			debug.Verbose("Frame %d: no correspondence yet, holding", l.frames)
			return false, nil
		}
		if err := l.command(sp, pv); err != nil {
			return false, err
		}
		l.prevSP, l.prevPV, l.hasPrev = sp, pv, true
		return true, nil

	case n == partialFrame && l.prevCount == fullFrame && l.hasPrev:
		debug.Verbose("Frame %d: spot lost, re-issuing last command", l.frames)
		l.prevCount = n
		if err := l.command(l.prevSP, l.prevPV); err != nil {
			return false, err
		}
		return true, nil

	default:
		l.prevCount = n
		return false, nil
	}
}

func (l *Loop) enterTracking() {
	debug.Transition(l.state, Tracking, l.frames)
	l.state = Tracking
	l.horizontal.Reset()
	l.vertical.Reset()
}

// command feeds one axis at a time: evaluate, then move, horizontal first.
func (l *Loop) command(sp, pv geometry.Point) error {
	l.horizontal.SetSetpoint(sp.X())
	h := l.horizontal.Evaluate(pv.X())
	if err := l.axes.MoveHorizontal(h); err != nil {
		return fmt.Errorf("horizontal move: %w", err)
	}

	l.vertical.SetSetpoint(sp.Y())
	v := l.vertical.Evaluate(pv.Y())
	if err := l.axes.MoveVertical(v); err != nil {
		return fmt.Errorf("vertical move: %w", err)
	}

	l.commands++
	debug.Live("Frame %d: sp=(%.1f, %.1f) pv=(%.1f, %.1f) → h=%.3f° v=%.3f°",
		l.frames, sp.X(), sp.Y(), pv.X(), pv.Y(), h, v)
	return nil
}

// Run processes frames from src until the budget is used, the stream ends, a
// frame or a move fails, or ctx is done. The motors are always returned to
// origin and src closed before Run returns, whatever the exit path.
func (l *Loop) Run(ctx context.Context, src camera.FrameSource) (res Result, err error) {
	debug.Section("Steering run")
	debug.Value("warm-up frames", l.cfg.WarmupFrames)
	debug.Value("frame budget", l.cfg.FrameBudget)

	l.tracker.ResetStorage()
	if l.state == Tracking && l.frames == 0 {
		l.horizontal.Reset()
		l.vertical.Reset()
	}
	start := l.clock.Now()

	defer func() {
		res.Elapsed = l.clock.Since(start)
		res.Frames = l.frames
		res.Commands = l.commands
		res.State = l.state
		res.Trace = l.tracker.Trace()
		if secs := res.Elapsed.Seconds(); secs > 0 {
			res.FPS = float64(l.frames) / secs
		}

		if shutErr := l.axes.Shutdown(); shutErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown: %w", shutErr))
		}
		if closeErr := src.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close source: %w", closeErr))
		}
	}()

	for l.cfg.FrameBudget <= 0 || l.frames < l.cfg.FrameBudget {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		points, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				debug.Info("Frame source ended after %d frames", l.frames)
				return res, fmt.Errorf("%w: %w", ErrStreamEnded, err)
			}
			return res, fmt.Errorf("frame %d: %w", l.frames+1, err)
		}

		if _, err := l.Step(points); err != nil {
			return res, fmt.Errorf("frame %d: %w", l.frames, err)
		}
	}

	debug.Info("Frame budget of %d reached", l.cfg.FrameBudget)
	return res, nil
}
