package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("ISLE_RCON_PASSWORD", "hunter2")

	path := filepath.Join(t.TempDir(), "config.yml")
	body := `
rcon:
  host: 10.0.0.5
  port: 9000
  password: ${ISLE_RCON_PASSWORD}
bounty:
  enabled: true
  batch_size: 25
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Rcon.Password != "hunter2" {
		t.Errorf("password = %q, want env value", cfg.Rcon.Password)
	}
	if got := cfg.Rcon.Address(); got != "10.0.0.5:9000" {
		t.Errorf("Address() = %q", got)
	}
	if cfg.Rcon.MaxAttempts != 3 || cfg.Rcon.RetryDelay != 5*time.Second {
		t.Errorf("retry defaults = %d/%v", cfg.Rcon.MaxAttempts, cfg.Rcon.RetryDelay)
	}
	if cfg.Rcon.CacheTTL != 2*time.Minute || cfg.Rcon.QuietWindow != 500*time.Millisecond {
		t.Errorf("cache/quiet defaults = %v/%v", cfg.Rcon.CacheTTL, cfg.Rcon.QuietWindow)
	}
	if cfg.Bounty.BatchSize != 25 {
		t.Errorf("batch size = %d, want explicit 25", cfg.Bounty.BatchSize)
	}
	if cfg.Bounty.MinContractReward != 100 {
		t.Errorf("min reward = %d", cfg.Bounty.MinContractReward)
	}
	if cfg.Bounty.Retention != 720*time.Hour {
		t.Errorf("retention = %v", cfg.Bounty.Retention)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
