// Package pid implements the per-axis feedback controller that turns a pixel
// error into a target motor angle.
package pid

import (
	"sync"
	"time"

	"github.com/cjeanneret/BeamGo/internal/timeutil"
)

// Config holds controller gains and limits.
type Config struct {
	Kp, Ki, Kd float64
	Setpoint   float64
	// SampleTime is the minimum interval between two evaluations. Calls that
	// arrive sooner return the previous output unchanged. 0 disables it.
	SampleTime time.Duration
	// OutputMin/OutputMax clamp both the integral term and the output.
	// Both zero means unbounded.
	OutputMin, OutputMax float64
	// DerivativeOnMeasurement differentiates the process variable instead of
	// the error, which avoids a kick when the setpoint jumps.
	DerivativeOnMeasurement bool
}

// Controller is a clock-driven PID controller. Safe for concurrent use.
type Controller struct {
	mu    sync.Mutex
	cfg   Config
	clock timeutil.Clock

	proportional float64
	integral     float64
	derivative   float64

	lastTime   time.Time
	lastOutput float64
	lastInput  float64
	lastError  float64
	hasOutput  bool
}

// New creates a controller. A nil clock uses the wall clock.
func New(cfg Config, clock timeutil.Clock) *Controller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	c := &Controller{clock: clock}
	c.Configure(cfg)
	return c
}

// Configure replaces gains and limits and resets the controller state.
func (c *Controller) Configure(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.Reset()
}

// SetSetpoint changes the target value without touching accumulated state.
func (c *Controller) SetSetpoint(sp float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Setpoint = sp
}

// Setpoint returns the current target value.
func (c *Controller) Setpoint() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Setpoint
}

// Reset clears the integral and the previous sample and restarts the time
// base, so the next Evaluate does not see the time spent before the reset.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.proportional = 0
	c.integral = c.clamp(0)
	c.derivative = 0
	c.lastTime = c.clock.Now()
	c.lastOutput = 0
	c.lastInput = 0
	c.lastError = 0
	c.hasOutput = false
}

// Evaluate computes the output for process variable pv.
func (c *Controller) Evaluate(pv float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	dt := now.Sub(c.lastTime).Seconds()
	if dt <= 0 {
		dt = 1e-16
	}

	if c.hasOutput && c.cfg.SampleTime > 0 && dt < c.cfg.SampleTime.Seconds() {
		return c.lastOutput
	}

	err := c.cfg.Setpoint - pv
	dInput := 0.0
	dError := 0.0
	if c.hasOutput {
		dInput = pv - c.lastInput
		dError = err - c.lastError
	}

	c.proportional = c.cfg.Kp * err
	c.integral = c.clamp(c.integral + c.cfg.Ki*err*dt)
	if c.cfg.DerivativeOnMeasurement {
		c.derivative = -c.cfg.Kd * dInput / dt
	} else {
		c.derivative = c.cfg.Kd * dError / dt
	}

	out := c.clamp(c.proportional + c.integral + c.derivative)

	c.lastOutput = out
	c.lastInput = pv
	c.lastError = err
	c.lastTime = now
	c.hasOutput = true
	return out
}

// Components returns the last proportional, integral and derivative terms.
func (c *Controller) Components() (p, i, d float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proportional, c.integral, c.derivative
}

func (c *Controller) clamp(v float64) float64 {
	if c.cfg.OutputMin == 0 && c.cfg.OutputMax == 0 {
		return v
	}
	if v > c.cfg.OutputMax {
		return c.cfg.OutputMax
	}
	if v < c.cfg.OutputMin {
		return c.cfg.OutputMin
	}
	return v
}
