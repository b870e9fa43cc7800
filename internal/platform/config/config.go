// Package config loads the journald configuration from a YAML file,
// validates it and applies defaults. Everything is optional; a missing file
// yields a fully defaulted config running on the in-memory adapters.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/fernweh-app/journal-core/internal/app/tracking"
)

type ServerConfig struct {
	Port               int `yaml:"port" validate:"omitempty,min=1,max=65535"`
	ShutdownTimeoutSec int `yaml:"shutdownTimeoutSec" validate:"gte=0"`
}

type StorageConfig struct {
	// Backend selects where repositories live. The device build uses
	// "memory"; "postgres" backs a server deployment of the same core.
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory postgres"`
	DSN     string `yaml:"dsn"`

	// QueueDir holds the durable pending-queue file. Empty keeps the queue
	// in memory only (it then does not survive a restart).
	QueueDir string `yaml:"queueDir"`
}

type TrackingConfig struct {
	DefaultTier            string  `yaml:"defaultTier" validate:"omitempty,oneof=COARSE BALANCED FINE NAVIGATION"`
	WaypointMinMeters      float64 `yaml:"waypointMinMeters" validate:"gte=0"`
	WaypointMaxIntervalSec int     `yaml:"waypointMaxIntervalSec" validate:"gte=0"`
	PauseTimeoutSec        int     `yaml:"pauseTimeoutSec" validate:"gte=0"`
	BatteryCoarseBelow     float64 `yaml:"batteryCoarseBelow" validate:"gte=0,lte=1"`
	BatteryBalancedBelow   float64 `yaml:"batteryBalancedBelow" validate:"gte=0,lte=1"`
}

type QueueConfig struct {
	StorageKey string `yaml:"storageKey"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Tracking TrackingConfig `yaml:"tracking"`
	Queue    QueueConfig    `yaml:"queue"`
}

// Load reads and validates the config at path. A missing file is not an
// error; defaults apply.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(&cfg)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	if cfg.Storage.Backend == "postgres" && cfg.Storage.DSN == "" {
		return Config{}, fmt.Errorf("validate config: storage.dsn is required for the postgres backend")
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8600
	}
	if cfg.Server.ShutdownTimeoutSec == 0 {
		cfg.Server.ShutdownTimeoutSec = 10
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Tracking.DefaultTier == "" {
		cfg.Tracking.DefaultTier = string(tracking.TierBalanced)
	}

	def := tracking.DefaultPolicy()
	if cfg.Tracking.WaypointMinMeters == 0 {
		cfg.Tracking.WaypointMinMeters = def.WaypointMinMeters
	}
	if cfg.Tracking.WaypointMaxIntervalSec == 0 {
		cfg.Tracking.WaypointMaxIntervalSec = int(def.WaypointMaxInterval / time.Second)
	}
	if cfg.Tracking.PauseTimeoutSec == 0 {
		cfg.Tracking.PauseTimeoutSec = int(def.PauseTimeout / time.Second)
	}
	if cfg.Tracking.BatteryCoarseBelow == 0 {
		cfg.Tracking.BatteryCoarseBelow = def.BatteryCoarseBelow
	}
	if cfg.Tracking.BatteryBalancedBelow == 0 {
		cfg.Tracking.BatteryBalancedBelow = def.BatteryBalancedBelow
	}
	if cfg.Queue.StorageKey == "" {
		cfg.Queue.StorageKey = "pending_waypoints"
	}
}

// Policy builds the tracking policy from the config, starting from the
// default tier-to-profile table.
func (c Config) Policy() tracking.Policy {
	p := tracking.DefaultPolicy()
	p.WaypointMinMeters = c.Tracking.WaypointMinMeters
	p.WaypointMaxInterval = time.Duration(c.Tracking.WaypointMaxIntervalSec) * time.Second
	p.PauseTimeout = time.Duration(c.Tracking.PauseTimeoutSec) * time.Second
	p.BatteryCoarseBelow = c.Tracking.BatteryCoarseBelow
	p.BatteryBalancedBelow = c.Tracking.BatteryBalancedBelow
	return p
}

// ShutdownTimeout is the grace period for draining the HTTP server.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}
