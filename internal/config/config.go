package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 1 << 20

// SerialConfig selects the bus shared by both motor controllers.
type SerialConfig struct {
	Backend string `yaml:"backend"` // "bugst" (default), "tarm" or "mock"
	Device  string `yaml:"device"`  // e.g. /dev/serial0
	Baud    int    `yaml:"baud"`
}

// MotorConfig holds the configuration for one steering axis.
type MotorConfig struct {
	Address       int     `yaml:"address"` // bus address, 1..255
	StepsPerRev   int     `yaml:"steps_per_rev"`
	Microstepping int     `yaml:"microstepping"`
	EnablePin     int     `yaml:"enable_pin"` // driver ENABLE pin (BCM). 0 = not used. Active LOW.
	LowerLimitDeg float64 `yaml:"lower_limit_deg"`
	UpperLimitDeg float64 `yaml:"upper_limit_deg"`
	OriginDeg     float64 `yaml:"origin_deg"` // angle made the new origin by -calibrate
}

// ControllerConfig holds the gains shared by both axis feedback controllers.
type ControllerConfig struct {
	Kp                      float64 `yaml:"kp"`
	Ki                      float64 `yaml:"ki"`
	Kd                      float64 `yaml:"kd"`
	SampleTimeMs            int     `yaml:"sample_time_ms"`
	OutputMin               float64 `yaml:"output_min"`
	OutputMax               float64 `yaml:"output_max"`
	DerivativeOnMeasurement bool    `yaml:"derivative_on_measurement"`
}

// TrackingConfig controls correspondence and the run length.
type TrackingConfig struct {
	// TolerancePx2 is the squared midpoint distance (pixels²) under which four
	// points count as a parallelogram. Required: it depends on the camera.
	TolerancePx2 float64 `yaml:"tolerance_px2"`
	WarmupFrames int     `yaml:"warmup_frames"`
	FrameBudget  int     `yaml:"frame_budget"` // 0 = until the source ends
}

// MQTTConfig describes the broker carrying detector frames.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
}

// SourceConfig selects where frames come from.
type SourceConfig struct {
	Type string     `yaml:"type"` // "jsonl" or "mqtt"
	Path string     `yaml:"path"` // jsonl file, "-" for stdin
	MQTT MQTTConfig `yaml:"mqtt"`
}

// ReportConfig controls what is written after a run.
type ReportConfig struct {
	ResultsDir string  `yaml:"results_dir"`
	Prefix     string  `yaml:"prefix"`
	Plot       bool    `yaml:"plot"`
	Database   string  `yaml:"database"` // empty = no run history
	SettlePx   float64 `yaml:"settle_px"`
}

// DefaultsConfig contains rig timings and runtime switches.
type DefaultsConfig struct {
	PacingMs         int  `yaml:"pacing_ms"`          // delay before each axis command
	ShutdownSettleMs int  `yaml:"shutdown_settle_ms"` // delay before each axis returns to origin
	OriginSettleMs   int  `yaml:"origin_settle_ms"`   // delay between calibration move and set-origin
	DebugLevel       int  `yaml:"debug_level"`        // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO         bool `yaml:"mock_gpio"`          // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Serial          SerialConfig     `yaml:"serial"`
	HorizontalMotor MotorConfig      `yaml:"horizontal_motor"`
	VerticalMotor   MotorConfig      `yaml:"vertical_motor"`
	Controller      ControllerConfig `yaml:"controller"`
	Tracking        TrackingConfig   `yaml:"tracking"`
	Source          SourceConfig     `yaml:"source"`
	Report          ReportConfig     `yaml:"report"`
	Defaults        DefaultsConfig   `yaml:"defaults"`
}

// Default returns the configuration of the reference rig. The tracking
// tolerance is left at zero and must come from the file.
func Default() Config {
	motor := MotorConfig{
		StepsPerRev:   200,
		Microstepping: 16,
		LowerLimitDeg: -10,
		UpperLimitDeg: 10,
	}
	h, v := motor, motor
	h.Address, v.Address = 0x01, 0x02

	return Config{
		Serial:          SerialConfig{Backend: "bugst", Device: "/dev/serial0", Baud: 115200},
		HorizontalMotor: h,
		VerticalMotor:   v,
		Controller: ControllerConfig{
			Kp:                      -0.01,
			Ki:                      -0.1,
			Kd:                      0,
			SampleTimeMs:            33,
			OutputMin:               -20,
			OutputMax:               20,
			DerivativeOnMeasurement: true,
		},
		Tracking: TrackingConfig{WarmupFrames: 100, FrameBudget: 1000},
		Source:   SourceConfig{Type: "jsonl", Path: "-"},
		Report:   ReportConfig{ResultsDir: "Results", Prefix: "protocol1", Plot: true, SettlePx: 5},
		Defaults: DefaultsConfig{
			PacingMs:         5,
			ShutdownSettleMs: 100,
			OriginSettleMs:   10,
			DebugLevel:       1,
		},
	}
}

// ValidateConfigPath accepts only a .yaml file directly inside a configs/
// directory, with no ".." elements.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file over Default() and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	if c.Tracking.TolerancePx2 <= 0 {
		return errors.New("tracking.tolerance_px2 is required and must be > 0")
	}
	if c.Tracking.WarmupFrames < 0 {
		return fmt.Errorf("tracking.warmup_frames must be >= 0, got %d", c.Tracking.WarmupFrames)
	}
	if c.Tracking.FrameBudget < 0 {
		return fmt.Errorf("tracking.frame_budget must be >= 0, got %d", c.Tracking.FrameBudget)
	}

	switch c.Serial.Backend {
	case "bugst", "tarm":
		if c.Serial.Device == "" {
			return fmt.Errorf("serial.device is required for backend %q", c.Serial.Backend)
		}
	case "mock":
	default:
		return fmt.Errorf("serial.backend must be bugst, tarm or mock, got %q", c.Serial.Backend)
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be > 0, got %d", c.Serial.Baud)
	}

	if err := c.HorizontalMotor.validate("horizontal_motor"); err != nil {
		return err
	}
	if err := c.VerticalMotor.validate("vertical_motor"); err != nil {
		return err
	}
	if c.HorizontalMotor.Address == c.VerticalMotor.Address {
		return fmt.Errorf("motor addresses must differ, both are %d", c.HorizontalMotor.Address)
	}

	if c.Controller.SampleTimeMs < 0 {
		return fmt.Errorf("controller.sample_time_ms must be >= 0, got %d", c.Controller.SampleTimeMs)
	}
	if c.Controller.OutputMin > c.Controller.OutputMax {
		return fmt.Errorf("controller.output_min (%.2f) must be <= output_max (%.2f)", c.Controller.OutputMin, c.Controller.OutputMax)
	}

	switch c.Source.Type {
	case "jsonl":
		if c.Source.Path == "" {
			return errors.New("source.path is required for jsonl (use \"-\" for stdin)")
		}
	case "mqtt":
		if c.Source.MQTT.Broker == "" || c.Source.MQTT.Topic == "" {
			return errors.New("source.mqtt.broker and source.mqtt.topic are required for mqtt")
		}
		if c.Source.MQTT.QoS < 0 || c.Source.MQTT.QoS > 2 {
			return fmt.Errorf("source.mqtt.qos must be 0, 1 or 2, got %d", c.Source.MQTT.QoS)
		}
	default:
		return fmt.Errorf("source.type must be jsonl or mqtt, got %q", c.Source.Type)
	}

	if c.Defaults.PacingMs < 0 || c.Defaults.ShutdownSettleMs < 0 || c.Defaults.OriginSettleMs < 0 {
		return errors.New("defaults delays must be >= 0")
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

func (m MotorConfig) validate(name string) error {
	if m.Address < 1 || m.Address > 255 {
		return fmt.Errorf("%s.address must be between 1 and 255, got %d", name, m.Address)
	}
	if m.StepsPerRev <= 0 {
		return fmt.Errorf("%s.steps_per_rev must be > 0, got %d", name, m.StepsPerRev)
	}
	if m.Microstepping <= 0 {
		return fmt.Errorf("%s.microstepping must be > 0, got %d", name, m.Microstepping)
	}
	if m.LowerLimitDeg > m.UpperLimitDeg {
		return fmt.Errorf("%s.lower_limit_deg (%.2f) must be <= upper_limit_deg (%.2f)", name, m.LowerLimitDeg, m.UpperLimitDeg)
	}
	return nil
}

// SampleTime returns the feedback controller sample time.
func (c *Config) SampleTime() time.Duration {
	return time.Duration(c.Controller.SampleTimeMs) * time.Millisecond
}

// Pacing returns the delay before each axis command.
func (c *Config) Pacing() time.Duration {
	return time.Duration(c.Defaults.PacingMs) * time.Millisecond
}

// ShutdownSettle returns the delay before each axis returns to origin.
func (c *Config) ShutdownSettle() time.Duration {
	return time.Duration(c.Defaults.ShutdownSettleMs) * time.Millisecond
}

// OriginSettle returns the delay between the calibration move and set-origin.
func (c *Config) OriginSettle() time.Duration {
	return time.Duration(c.Defaults.OriginSettleMs) * time.Millisecond
}
