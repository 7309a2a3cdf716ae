package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Evolution.ComplexityGrowth != 1.15 {
		t.Errorf("complexity growth = %v, want 1.15", cfg.Evolution.ComplexityGrowth)
	}
	if cfg.Evolution.PerformanceFloor != 0.85 {
		t.Errorf("performance floor = %v, want 0.85", cfg.Evolution.PerformanceFloor)
	}
	if cfg.Deliberation.FailureLookback != 3 {
		t.Errorf("failure lookback = %v, want 3", cfg.Deliberation.FailureLookback)
	}
	if cfg.Deliberation.BaseInterval != 10*time.Second {
		t.Errorf("base interval = %v, want 10s", cfg.Deliberation.BaseInterval)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "metamorph" {
		t.Errorf("name = %q, want metamorph", cfg.Name)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metamorph.yaml")

	cfg := DefaultConfig()
	cfg.Deliberation.EpisodeCapacity = 42
	cfg.Paths.WorkDir = "/tmp/mm"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Deliberation.EpisodeCapacity != 42 {
		t.Errorf("episode capacity = %d, want 42", loaded.Deliberation.EpisodeCapacity)
	}
	if loaded.Paths.WorkDir != "/tmp/mm" {
		t.Errorf("work dir = %q, want /tmp/mm", loaded.Paths.WorkDir)
	}
}

func TestEnvOverride(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-key-xyz")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Suggest.APIKey != "test-key-xyz" {
		t.Errorf("api key = %q, want env value", cfg.Suggest.APIKey)
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.WorkDir = "data"
	cfg.Paths.Database = "m.db"
	if got := cfg.DatabasePath(); got != filepath.Join("data", "m.db") {
		t.Errorf("DatabasePath() = %q", got)
	}

	cfg.Paths.Database = "/abs/m.db"
	if got := cfg.DatabasePath(); got != "/abs/m.db" {
		t.Errorf("DatabasePath() = %q", got)
	}
}
