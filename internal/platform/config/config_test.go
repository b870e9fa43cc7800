package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fernweh-app/journal-core/internal/app/tracking"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journald.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8600 || cfg.Storage.Backend != "memory" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.Tracking.DefaultTier != string(tracking.TierBalanced) {
		t.Fatalf("default tier=%q", cfg.Tracking.DefaultTier)
	}
	if cfg.Queue.StorageKey != "pending_waypoints" {
		t.Fatalf("queue key=%q", cfg.Queue.StorageKey)
	}

	p := cfg.Policy()
	def := tracking.DefaultPolicy()
	if p.WaypointMinMeters != def.WaypointMinMeters || p.PauseTimeout != def.PauseTimeout {
		t.Fatalf("policy=%+v", p)
	}
}

func TestLoad_OverridesAndPolicy(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9000
tracking:
  defaultTier: FINE
  waypointMinMeters: 12.5
  pauseTimeoutSec: 120
storage:
  backend: memory
  queueDir: /tmp/journal
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Tracking.DefaultTier != "FINE" {
		t.Fatalf("cfg=%+v", cfg)
	}

	p := cfg.Policy()
	if p.WaypointMinMeters != 12.5 {
		t.Fatalf("waypoint gate=%v", p.WaypointMinMeters)
	}
	if p.PauseTimeout != 2*time.Minute {
		t.Fatalf("pause timeout=%v", p.PauseTimeout)
	}
	// Unset fields keep defaults.
	if p.WaypointMaxInterval != tracking.DefaultPolicy().WaypointMaxInterval {
		t.Fatalf("max interval=%v", p.WaypointMaxInterval)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := Load(writeConfig(t, "server:\n  port: -1\n")); err == nil {
		t.Fatalf("negative port must fail validation")
	}
	if _, err := Load(writeConfig(t, "tracking:\n  defaultTier: TURBO\n")); err == nil {
		t.Fatalf("unknown tier must fail validation")
	}
	if _, err := Load(writeConfig(t, "storage:\n  backend: postgres\n")); err == nil {
		t.Fatalf("postgres without dsn must fail validation")
	}
	if _, err := Load(writeConfig(t, "server: [broken\n")); err == nil {
		t.Fatalf("malformed yaml must fail")
	}
}
