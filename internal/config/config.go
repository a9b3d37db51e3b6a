// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Receiver ReceiverConfig `yaml:"receiver"`
}

type ReceiverConfig struct {
	Name         string  `yaml:"name"`
	SampleRateHz float64 `yaml:"sample_rate_hz"`
	MaxChannels  int     `yaml:"max_channels"`

	// PRNs[i] is assigned to tracking channel i at start-up
	PRNs []uint8 `yaml:"prns"`

	Hardware HardwareConfig `yaml:"hardware"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Timer    TimerConfig    `yaml:"timer"`
	Nav      NavConfig      `yaml:"nav"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Status   *StatusConfig  `yaml:"status"`
	Archive  *ArchiveConfig `yaml:"archive"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ---- HARDWARE ----

const (
	SourceModbus = "modbus"
	SourceSim    = "sim"

	TransportTCP = "tcp"
	TransportRTU = "rtu"
)

type HardwareConfig struct {
	Source    string `yaml:"source"`
	Transport string `yaml:"transport"`
	Endpoint  string `yaml:"endpoint"`
	BaudRate  int    `yaml:"baud_rate"`
	UnitID    uint8  `yaml:"unit_id"`

	BaseAddress    uint16 `yaml:"base_address"`
	TimeoutMs      int    `yaml:"timeout_ms"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`

	// sim only
	StartWeek int     `yaml:"start_week"`
	StartTOW  float64 `yaml:"start_tow"`
}

// ---- CORE ----

type BridgeConfig struct {
	ProcessPeriodMs int `yaml:"process_period_ms"`
}

type TimerConfig struct {
	KeepIntervalMs int `yaml:"keep_interval_ms"`
}

type NavConfig struct {
	PeriodMs      int `yaml:"period_ms"`
	ReferenceWeek int `yaml:"reference_week"`
}

type WatchdogConfig struct {
	TimeoutMs       int `yaml:"timeout_ms"`
	CheckIntervalMs int `yaml:"check_interval_ms"`
}

// ---- OPTIONAL OUTPUTS ----

// StatusConfig enables the health status block (opt-in).
type StatusConfig struct {
	Endpoint   string `yaml:"endpoint"`
	UnitID     uint8  `yaml:"unit_id"`
	BaseSlot   uint16 `yaml:"base_slot"`
	DeviceName string `yaml:"device_name"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// ArchiveConfig enables the ephemeris archive (opt-in).
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// ---- defaults ----

const (
	DefaultSampleRateHz    = 99375000
	DefaultMaxChannels     = 12
	DefaultTimeoutMs       = 500
	DefaultPollIntervalMs  = 2
	DefaultProcessPeriodMs = 1000
	DefaultKeepIntervalMs  = 1000
	DefaultNavPeriodMs     = 1000
	DefaultWatchdogMs      = 3000
	DefaultWatchdogCheckMs = 1000
)

// Load reads path, expanding ${VAR} references from the environment.
// A .env file next to the working directory is loaded first when present;
// variables already set win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse([]byte(os.ExpandEnv(string(raw))))
}

// Parse decodes YAML and fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	r := &cfg.Receiver

	if r.SampleRateHz == 0 {
		r.SampleRateHz = DefaultSampleRateHz
	}
	if r.MaxChannels == 0 {
		r.MaxChannels = DefaultMaxChannels
	}

	if r.Hardware.Source == "" {
		r.Hardware.Source = SourceModbus
	}
	if r.Hardware.Transport == "" {
		r.Hardware.Transport = TransportTCP
	}
	if r.Hardware.TimeoutMs == 0 {
		r.Hardware.TimeoutMs = DefaultTimeoutMs
	}
	if r.Hardware.PollIntervalMs == 0 {
		r.Hardware.PollIntervalMs = DefaultPollIntervalMs
	}

	if r.Bridge.ProcessPeriodMs == 0 {
		r.Bridge.ProcessPeriodMs = DefaultProcessPeriodMs
	}
	if r.Timer.KeepIntervalMs == 0 {
		r.Timer.KeepIntervalMs = DefaultKeepIntervalMs
	}
	if r.Nav.PeriodMs == 0 {
		r.Nav.PeriodMs = DefaultNavPeriodMs
	}
	if r.Watchdog.TimeoutMs == 0 {
		r.Watchdog.TimeoutMs = DefaultWatchdogMs
	}
	if r.Watchdog.CheckIntervalMs == 0 {
		r.Watchdog.CheckIntervalMs = DefaultWatchdogCheckMs
	}

	if r.Status != nil && r.Status.TimeoutMs == 0 {
		r.Status.TimeoutMs = DefaultTimeoutMs
	}
}

// Ms converts a millisecond config field.
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
