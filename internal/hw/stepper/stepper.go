// Package stepper models one serially commanded stepper axis. The step count
// is the source of truth for position; angles are always derived from it so
// truncation never accumulates.
package stepper

import (
	"fmt"
	"time"

	"github.com/cjeanneret/BeamGo/internal/debug"
	"github.com/cjeanneret/BeamGo/internal/hw/gpio"
	"github.com/cjeanneret/BeamGo/internal/logic/geometry"
	"github.com/cjeanneret/BeamGo/internal/timeutil"
)

// Writer sends one complete frame on the bus.
type Writer interface {
	WriteBytes(buf []byte) error
}

// Config holds the hardware configuration for one motor.
type Config struct {
	Address       byte
	StepsPerRev   int
	Microstepping int
	EnablePin     int // driver ENABLE pin (BCM). 0 = not used. Active LOW.

	// Angle limits in degrees. Both zero means the full-turn default 0..360.
	LowerLimitDeg float64
	UpperLimitDeg float64
}

// Motor tracks and commands the position of one stepper.
type Motor struct {
	name  string
	tx    Writer
	gpio  gpio.Driver
	clock timeutil.Clock
	cfg   Config

	degPerStep float64
	steps      int
	lower      float64
	upper      float64
}

// NewMotor creates a motor at step 0. g may be nil when no enable pin is wired.
func NewMotor(name string, tx Writer, g gpio.Driver, cfg Config) *Motor {
	if cfg.StepsPerRev <= 0 {
		cfg.StepsPerRev = 200
	}
	if cfg.Microstepping <= 0 {
		cfg.Microstepping = 16
	}

	m := &Motor{
		name:       name,
		tx:         tx,
		gpio:       g,
		clock:      timeutil.RealClock{},
		cfg:        cfg,
		degPerStep: geometry.DegreesPerStep(cfg.StepsPerRev, cfg.Microstepping),
		lower:      0,
		upper:      360,
	}
	if cfg.LowerLimitDeg != 0 || cfg.UpperLimitDeg != 0 {
		m.lower, m.upper = cfg.LowerLimitDeg, cfg.UpperLimitDeg
	}

	// Active LOW: LOW = enabled, HIGH = freewheel.
	// Failures are logged only; Enable drives the pin again and reports them.
	if g != nil && cfg.EnablePin > 0 {
		if err := g.SetupOutput(cfg.EnablePin); err != nil {
			debug.Error(fmt.Errorf("%s: setup enable pin %d: %w", name, cfg.EnablePin, err))
		} else if err := g.Write(cfg.EnablePin, gpio.Low); err != nil {
			debug.Error(fmt.Errorf("%s: enable pin %d: %w", name, cfg.EnablePin, err))
		}
	}

	return m
}

// SetClock replaces the clock used for the origin settle delay.
func (m *Motor) SetClock(c timeutil.Clock) {
	if c != nil {
		m.clock = c
	}
}

// Name returns the motor label used in logs.
func (m *Motor) Name() string { return m.name }

// Address returns the bus address.
func (m *Motor) Address() byte { return m.cfg.Address }

// Steps returns the signed step count relative to origin.
func (m *Motor) Steps() int { return m.steps }

// DegreesPerStep returns the angle of one microstep.
func (m *Motor) DegreesPerStep() float64 { return m.degPerStep }

// CurrentAngle derives the angle from the step count.
func (m *Motor) CurrentAngle() float64 {
	return geometry.AngleFromSteps(m.steps, m.degPerStep)
}

// SetAngleLimits replaces the allowed range. No ordering check is made.
func (m *Motor) SetAngleLimits(lower, upper float64) {
	m.lower, m.upper = lower, upper
}

// AngleLimits returns the allowed range.
func (m *Motor) AngleLimits() (lower, upper float64) {
	return m.lower, m.upper
}

// MoveTo steers to angle, clamped to the limits. A target less than one step
// away sends nothing. The step count only changes after a successful write,
// so a failed write leaves the motor's idea of its position untouched; keep
// it that way rather than counting undelivered steps.
func (m *Motor) MoveTo(angle float64) error {
	target := angle
	if target > m.upper {
		target = m.upper
	} else if target < m.lower {
		target = m.lower
	}

	delta := geometry.StepDelta(m.steps, m.degPerStep, target)
	if delta == 0 {
		return nil
	}

	frame, err := EncodeMove(m.cfg.Address, delta)
	if err != nil {
		return err
	}

	dir := "positive"
	if delta < 0 {
		dir = "negative"
	}
	debug.Move(m.name, delta, dir)

	if err := m.tx.WriteBytes(frame); err != nil {
		return err
	}
	m.steps += delta
	return nil
}

// MoveToOrigin is MoveTo(0).
func (m *Motor) MoveToOrigin() error {
	return m.MoveTo(0)
}

// SetCurrentPositionAsOrigin tells the controller to zero itself and resets
// the step count.
func (m *Motor) SetCurrentPositionAsOrigin() error {
	if err := m.tx.WriteBytes(EncodeSetOrigin(m.cfg.Address)); err != nil {
		return err
	}
	debug.Verbose("%s: origin set at %.4f°", m.name, m.CurrentAngle())
	m.steps = 0
	return nil
}

// SetOriginToAngle moves to angle, waits for the controller to settle, then
// makes that position the new origin.
func (m *Motor) SetOriginToAngle(angle float64, settle time.Duration) error {
	if err := m.MoveTo(angle); err != nil {
		return err
	}
	m.clock.Sleep(settle)
	return m.SetCurrentPositionAsOrigin()
}

// Enable turns on the motor driver (ENABLE=LOW). Motors hold position.
func (m *Motor) Enable() error {
	if m.gpio == nil || m.cfg.EnablePin <= 0 {
		return nil
	}
	return m.gpio.Write(m.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (ENABLE=HIGH). No holding torque.
func (m *Motor) Disable() error {
	if m.gpio == nil || m.cfg.EnablePin <= 0 {
		return nil
	}
	return m.gpio.Write(m.cfg.EnablePin, gpio.High)
}
