package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cjeanneret/BeamGo/internal/config"
	"github.com/cjeanneret/BeamGo/internal/debug"
	"github.com/cjeanneret/BeamGo/internal/hw/camera"
	"github.com/cjeanneret/BeamGo/internal/hw/gpio"
	"github.com/cjeanneret/BeamGo/internal/hw/stepper"
	"github.com/cjeanneret/BeamGo/internal/hw/transport"
	"github.com/cjeanneret/BeamGo/internal/logic/motion"
	"github.com/cjeanneret/BeamGo/internal/logic/pid"
	"github.com/cjeanneret/BeamGo/internal/logic/steering"
	"github.com/cjeanneret/BeamGo/internal/logic/tracking"
	"github.com/cjeanneret/BeamGo/internal/report"
	"github.com/cjeanneret/BeamGo/internal/store"
	"github.com/cjeanneret/BeamGo/internal/timeutil"
	"github.com/cjeanneret/BeamGo/internal/web"
)

// rig holds what outlives a single run. The serial bus is opened per run
// because the end-of-run shutdown closes it.
type rig struct {
	cfg   *config.Config
	gpio  gpio.Driver
	db    *store.DB // nil: no run history
	clock timeutil.Clock
	stdin io.Reader // source for path "-"; nil uses os.Stdin
}

// motors opens the bus and builds both axes on it.
func (r *rig) motors(cfg *config.Config) (*motion.Controller, error) {
	bus, err := transport.Open(transport.Config{
		Backend: cfg.Serial.Backend,
		Device:  cfg.Serial.Device,
		Baud:    cfg.Serial.Baud,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial bus: %w", err)
	}

	h := stepper.NewMotor("horizontal", bus, r.gpio, motorConfig(cfg.HorizontalMotor))
	debug.PrintStruct("Horizontal motor config", cfg.HorizontalMotor)
	v := stepper.NewMotor("vertical", bus, r.gpio, motorConfig(cfg.VerticalMotor))
	debug.PrintStruct("Vertical motor config", cfg.VerticalMotor)

	ctrl := motion.NewController(h, v, bus, r.clock, motion.Timing{
		Pacing:         cfg.Pacing(),
		ShutdownSettle: cfg.ShutdownSettle(),
		OriginSettle:   cfg.OriginSettle(),
	})
	debug.Value("Horizontal deg/step", ctrl.Horizontal().DegreesPerStep())
	debug.Value("Vertical deg/step", ctrl.Vertical().DegreesPerStep())
	return ctrl, nil
}

// run executes one steering session with overrides applied, then saves the
// trace file, the plot and the history row. The returned run is filled in
// even when err is non-nil.
func (r *rig) run(ctx context.Context, overrides web.Overrides) (store.Run, error) {
	cfg := applyOverridesToCopy(r.cfg, overrides)

	debug.Step(3, "Opening motors")
	ctrl, err := r.motors(cfg)
	if err != nil {
		return store.Run{}, err
	}
	if err := ctrl.EnableMotors(); err != nil {
		return store.Run{}, errors.Join(err, ctrl.Shutdown())
	}
	defer func() {
		if err := ctrl.DisableMotors(); err != nil {
			debug.Error(fmt.Errorf("disable motors: %w", err))
		}
	}()

	debug.Step(4, "Opening frame source")
	src, err := r.openSource(cfg)
	if err != nil {
		return store.Run{}, errors.Join(err, ctrl.Shutdown())
	}

	debug.Step(5, "Building controllers")
	gains := pidConfig(cfg.Controller, cfg.SampleTime())
	debug.PrintStruct("Controller", cfg.Controller)
	resolver := tracking.NewResolver(cfg.Tracking.TolerancePx2)
	debug.Value("Tolerance (px²)", resolver.Tolerance())
	tracker := tracking.NewTracker(resolver, r.clock)
	hPID, vPID := pid.New(gains, r.clock), pid.New(gains, r.clock)
	loop := steering.NewLoop(steering.Config{
		WarmupFrames: cfg.Tracking.WarmupFrames,
		FrameBudget:  cfg.Tracking.FrameBudget,
	}, tracker, ctrl, hPID, vPID, r.clock)

	started := r.clock.Now()
	res, runErr := loop.Run(ctx, src)

	debug.Summary("Run Summary")
	debug.Info("%d frames, %d commands in %v (%.2f fps), final state %s",
		res.Frames, res.Commands, res.Elapsed.Round(time.Millisecond), res.FPS, res.State)
	if corr, ok := tracker.Correspondence(); ok {
		debug.Info("Last receiver=%v spot=%v", corr.Receiver, corr.LaserSpot)
	}
	logFeedback("Horizontal", hPID)
	logFeedback("Vertical", vPID)

	rec := store.Run{
		ID:           store.NewRunID(),
		StartedAt:    started,
		Frames:       res.Frames,
		Commands:     res.Commands,
		ElapsedS:     res.Elapsed.Seconds(),
		FPS:          res.FPS,
		TolerancePx2: cfg.Tracking.TolerancePx2,
		FinalState:   res.State.String(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	if err := r.saveResults(context.WithoutCancel(ctx), cfg, rec, res.Trace); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return rec, runErr
}

// saveResults writes the two-line trace file, its plot and the history row.
func (r *rig) saveResults(ctx context.Context, cfg *config.Config, rec store.Run, tr tracking.Trace) error {
	path, err := report.SaveTrace(cfg.Report.ResultsDir, "", cfg.Report.Prefix, tr, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("save trace: %w", err)
	}
	debug.Info("Results saved to %s", path)

	summary := report.Summarize(tr, cfg.Report.SettlePx)
	debug.Info("Trace: %s", summary)

	var errs []error
	if cfg.Report.Plot && tr.Len() > 0 {
		if err := report.PlotTrace(path+".png", cfg.Report.Prefix+" "+rec.StartedAt.Format(report.FileTimeLayout), tr); err != nil {
			errs = append(errs, fmt.Errorf("plot trace: %w", err))
		}
	}
	if r.db != nil {
		if _, err := r.db.SaveRun(ctx, rec, tr); err != nil {
			errs = append(errs, fmt.Errorf("save run history: %w", err))
		} else {
			debug.Verbose("Run %s recorded", rec.ID)
		}
	}
	return errors.Join(errs...)
}

// calibrate makes the given angles the new origin of each axis.
func (r *rig) calibrate(horizontalDeg, verticalDeg float64) error {
	debug.Section("Calibration")
	ctrl, err := r.motors(r.cfg)
	if err != nil {
		return err
	}
	calErr := ctrl.Calibrate(horizontalDeg, verticalDeg)
	return errors.Join(calErr, ctrl.Close())
}

// openSource selects the frame source from configuration.
func (r *rig) openSource(cfg *config.Config) (camera.FrameSource, error) {
	switch cfg.Source.Type {
	case "jsonl":
		if cfg.Source.Path == "-" {
			in := r.stdin
			if in == nil {
				in = os.Stdin
			}
			// stdin stays open across web runs
			return camera.NewJSONLines(io.NopCloser(in)), nil
		}
		f, err := os.Open(cfg.Source.Path)
		if err != nil {
			return nil, fmt.Errorf("open frame file: %w", err)
		}
		debug.Value("Frame file", cfg.Source.Path)
		return camera.NewJSONLines(f), nil
	case "mqtt":
		m := cfg.Source.MQTT
		debug.Value("MQTT topic", m.Topic)
		src, err := camera.DialMQTT(camera.MQTTConfig{
			Broker:   m.Broker,
			ClientID: m.ClientID,
			Username: m.Username,
			Password: m.Password,
			Topic:    m.Topic,
			QoS:      byte(m.QoS),
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Source.Type)
	}
}

// logFeedback prints the last setpoint and PID terms of one axis.
func logFeedback(axis string, c *pid.Controller) {
	p, i, d := c.Components()
	debug.Verbose("%s PID: setpoint=%.2f p=%.4f i=%.4f d=%.4f", axis, c.Setpoint(), p, i, d)
}

func motorConfig(m config.MotorConfig) stepper.Config {
	return stepper.Config{
		Address:       byte(m.Address),
		StepsPerRev:   m.StepsPerRev,
		Microstepping: m.Microstepping,
		EnablePin:     m.EnablePin,
		LowerLimitDeg: m.LowerLimitDeg,
		UpperLimitDeg: m.UpperLimitDeg,
	}
}

func pidConfig(c config.ControllerConfig, sampleTime time.Duration) pid.Config {
	return pid.Config{
		Kp:                      c.Kp,
		Ki:                      c.Ki,
		Kd:                      c.Kd,
		SampleTime:              sampleTime,
		OutputMin:               c.OutputMin,
		OutputMax:               c.OutputMax,
		DerivativeOnMeasurement: c.DerivativeOnMeasurement,
	}
}
