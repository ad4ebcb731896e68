// Package motion orchestrates the two steering axes sharing one serial bus.
// It sits between the control loop and the per-motor position models.
package motion

import (
	"errors"
	"io"
	"time"

	"github.com/cjeanneret/BeamGo/internal/debug"
	"github.com/cjeanneret/BeamGo/internal/hw/stepper"
	"github.com/cjeanneret/BeamGo/internal/timeutil"
)

// Timing holds the fixed delays of the rig.
type Timing struct {
	// Pacing is slept before every axis dispatch so the drivers can ingest
	// consecutive frames.
	Pacing time.Duration
	// ShutdownSettle is slept before each axis returns to origin on shutdown.
	ShutdownSettle time.Duration
	// OriginSettle is slept between the calibration move and set-origin.
	OriginSettle time.Duration
}

// DefaultTiming returns the delays of the reference rig.
func DefaultTiming() Timing {
	return Timing{
		Pacing:         5 * time.Millisecond,
		ShutdownSettle: 100 * time.Millisecond,
		OriginSettle:   10 * time.Millisecond,
	}
}

// Controller drives the horizontal and vertical motors.
type Controller struct {
	horizontal *stepper.Motor
	vertical   *stepper.Motor
	bus        io.Closer
	clock      timeutil.Clock
	timing     Timing
}

// NewController builds the axis pair. bus is closed by Shutdown; it may be
// nil when the caller owns the transport.
func NewController(horizontal, vertical *stepper.Motor, bus io.Closer, clock timeutil.Clock, timing Timing) *Controller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	horizontal.SetClock(clock)
	vertical.SetClock(clock)
	return &Controller{
		horizontal: horizontal,
		vertical:   vertical,
		bus:        bus,
		clock:      clock,
		timing:     timing,
	}
}

// Horizontal returns the horizontal motor.
func (c *Controller) Horizontal() *stepper.Motor { return c.horizontal }

// Vertical returns the vertical motor.
func (c *Controller) Vertical() *stepper.Motor { return c.vertical }

// MoveHorizontal waits the pacing delay then steers the horizontal axis.
func (c *Controller) MoveHorizontal(angle float64) error {
	c.clock.Sleep(c.timing.Pacing)
	return c.horizontal.MoveTo(angle)
}

// MoveVertical waits the pacing delay then steers the vertical axis.
func (c *Controller) MoveVertical(angle float64) error {
	c.clock.Sleep(c.timing.Pacing)
	return c.vertical.MoveTo(angle)
}

// MoveBoth commands horizontal then vertical.
func (c *Controller) MoveBoth(h, v float64) error {
	if err := c.MoveHorizontal(h); err != nil {
		return err
	}
	return c.MoveVertical(v)
}

// Shutdown returns both axes to origin, vertical first, then closes the bus.
// Every step runs even if an earlier one failed; the errors are joined.
func (c *Controller) Shutdown() error {
	debug.Section("Shutdown")

	var errs []error
	c.clock.Sleep(c.timing.ShutdownSettle)
	if err := c.vertical.MoveToOrigin(); err != nil {
		errs = append(errs, err)
	}
	c.clock.Sleep(c.timing.ShutdownSettle)
	if err := c.horizontal.MoveToOrigin(); err != nil {
		errs = append(errs, err)
	}
	if c.bus != nil {
		if err := c.bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		debug.Error(err)
		return err
	}
	debug.Info("Motors at origin, transport closed")
	return nil
}

// Close releases the bus without moving either axis.
func (c *Controller) Close() error {
	if c.bus == nil {
		return nil
	}
	return c.bus.Close()
}

// Calibrate moves each axis to the given angle and makes it the new origin,
// horizontal then vertical.
func (c *Controller) Calibrate(horizontalDeg, verticalDeg float64) error {
	debug.Section("Calibrate")
	debug.Value("horizontal origin (deg)", horizontalDeg)
	debug.Value("vertical origin (deg)", verticalDeg)

	if err := c.horizontal.SetOriginToAngle(horizontalDeg, c.timing.OriginSettle); err != nil {
		return err
	}
	c.clock.Sleep(c.timing.ShutdownSettle)
	return c.vertical.SetOriginToAngle(verticalDeg, c.timing.OriginSettle)
}

// EnableMotors turns on both drivers. Motors hold position.
func (c *Controller) EnableMotors() error {
	if err := c.horizontal.Enable(); err != nil {
		return err
	}
	return c.vertical.Enable()
}

// DisableMotors turns off both drivers. Motors freewheel.
func (c *Controller) DisableMotors() error {
	if err := c.horizontal.Disable(); err != nil {
		return err
	}
	return c.vertical.Disable()
}
