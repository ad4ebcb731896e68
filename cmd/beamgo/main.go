package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/BeamGo/internal/config"
	"github.com/cjeanneret/BeamGo/internal/debug"
	"github.com/cjeanneret/BeamGo/internal/hw/gpio"
	"github.com/cjeanneret/BeamGo/internal/logic/steering"
	"github.com/cjeanneret/BeamGo/internal/store"
	"github.com/cjeanneret/BeamGo/internal/timeutil"
	"github.com/cjeanneret/BeamGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	frames := flag.Int("frames", -1, "override frame budget (0 = until the source ends, -1 = config)")
	warmup := flag.Int("warmup", -1, "override warm-up frames (-1 = config)")
	tolerance := flag.Float64("tolerance_px2", 0, "override parallelogram tolerance in px² (0 = config)")
	calibrate := flag.Bool("calibrate", false, "move both axes to their origin_deg, make that the new origin, and exit")
	originH := flag.Float64("origin_h_deg", 0, "with -calibrate: horizontal origin angle (overrides config)")
	originV := flag.Float64("origin_v_deg", 0, "with -calibrate: vertical origin angle (overrides config)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	overrides, err := resolveOverrides(cfg, *frames, *warmup, *tolerance)
	if err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	var db *store.DB
	if cfg.Report.Database != "" {
		debug.Step(2, "Opening run history")
		db, err = store.Open(cfg.Report.Database)
		if err != nil {
			log.Fatalf("open run history failed: %v", err)
		}
		defer db.Close()
		debug.Value("Database", cfg.Report.Database)
	}

	r := &rig{cfg: cfg, gpio: gpioDriver, db: db, clock: timeutil.RealClock{}}

	if *calibrate {
		h, v := calibrationAngles(cfg, *originH, *originV)
		if err := r.calibrate(h, v); err != nil {
			log.Fatalf("calibration failed: %v", err)
		}
		fmt.Printf("Origin set at h=%.4f° v=%.4f°\n", h, v)
		return
	}

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		var history web.RunHistory
		if db != nil {
			history = db
		}
		formDefaults := web.FormConfig{
			FrameBudget:  overrides.FrameBudget,
			WarmupFrames: overrides.WarmupFrames,
			TolerancePx2: overrides.TolerancePx2,
		}
		srv, err := web.NewServer(webAddr, broadcaster, r.run, history, formDefaults)
		if err != nil {
			log.Fatalf("web server: %v", err)
		}
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	run, err := r.run(ctx, overrides)
	if run.Frames > 0 {
		fmt.Printf("%d frames, %d commands, %.2f fps\n", run.Frames, run.Commands, run.FPS)
	}
	switch {
	case errors.Is(err, context.Canceled):
		log.Printf("run interrupted after %d frames", run.Frames)
	case errors.Is(err, steering.ErrStreamEnded):
		log.Fatalf("run ended early: %v", err)
	case err != nil:
		log.Fatalf("run failed: %v", err)
	}
}

// resolveOverrides starts from the config values and applies the CLI flags
// that were set. Negative ints and a zero tolerance mean "use config".
func resolveOverrides(cfg *config.Config, frames, warmup int, tolerancePx2 float64) (web.Overrides, error) {
	o := web.Overrides{
		FrameBudget:  cfg.Tracking.FrameBudget,
		WarmupFrames: cfg.Tracking.WarmupFrames,
		TolerancePx2: cfg.Tracking.TolerancePx2,
	}
	if frames >= 0 {
		o.FrameBudget = frames
	}
	if warmup >= 0 {
		o.WarmupFrames = warmup
	}
	if tolerancePx2 != 0 {
		o.TolerancePx2 = tolerancePx2
	}
	if err := web.ValidateOverrides(o); err != nil {
		return web.Overrides{}, err
	}
	return o, nil
}

// applyOverridesToCopy returns a new config with overrides applied. The web
// form always sends full values, so every field is copied.
func applyOverridesToCopy(baseCfg *config.Config, overrides web.Overrides) *config.Config {
	cfg := *baseCfg
	cfg.Tracking.FrameBudget = overrides.FrameBudget
	cfg.Tracking.WarmupFrames = overrides.WarmupFrames
	cfg.Tracking.TolerancePx2 = overrides.TolerancePx2
	return &cfg
}

// calibrationAngles picks the flag values over the configured origins.
func calibrationAngles(cfg *config.Config, h, v float64) (float64, float64) {
	if h == 0 {
		h = cfg.HorizontalMotor.OriginDeg
	}
	if v == 0 {
		v = cfg.VerticalMotor.OriginDeg
	}
	return h, v
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
