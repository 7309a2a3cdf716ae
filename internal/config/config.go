// Package config loads and defaults the engine configuration. Every tunable
// threshold of the hypothesis generator, deliberation engine, and autonomy
// loop lives here so the algorithmic packages stay free of magic numbers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all metamorph configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Managed source and artifact locations
	Paths PathsConfig `yaml:"paths"`

	// Evolution pipeline thresholds
	Evolution EvolutionConfig `yaml:"evolution"`

	// Deliberation and episodic memory tuning
	Deliberation DeliberationConfig `yaml:"deliberation"`

	// External generation service
	Suggest SuggestConfig `yaml:"suggest"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PathsConfig locates the managed source and all persisted artifacts.
type PathsConfig struct {
	// ManagedSource is the Go file the engine evolves.
	ManagedSource string `yaml:"managed_source"`

	// WorkDir is the root for cycles/, mods/, logs/ and the SQLite store.
	WorkDir string `yaml:"work_dir"`

	// Database is the SQLite ledger path, relative to WorkDir when not
	// absolute.
	Database string `yaml:"database"`

	// TestSource holds the test functions the validator discovers and runs
	// against modified source.
	TestSource string `yaml:"test_source"`
}

// EvolutionConfig tunes the hypothesis generator and security gate.
type EvolutionConfig struct {
	// ComplexityGrowth is the ratio above which a complexity increase
	// triggers a refactor proposal (1.15 = +15%).
	ComplexityGrowth float64 `yaml:"complexity_growth"`

	// PerformanceFloor is the ratio below which a performance drop triggers
	// an optimize proposal (0.85 = fell to 85% of prior value).
	PerformanceFloor float64 `yaml:"performance_floor"`

	// CoverageMinimum is the metric count under which a component receives
	// an expand_functionality proposal.
	CoverageMinimum int `yaml:"coverage_minimum"`

	// MinComponents is the registry size under which a create_new_module
	// proposal targets the system.
	MinComponents int `yaml:"min_components"`

	// IntegrationChance is the per-cycle probability of an exploratory
	// cross-component integration proposal.
	IntegrationChance float64 `yaml:"integration_chance"`
}

// DeliberationConfig tunes action selection and the autonomy loop.
type DeliberationConfig struct {
	// EpisodeCapacity bounds the episodic memory FIFO.
	EpisodeCapacity int `yaml:"episode_capacity"`

	// FailureLookback is how many matching episodes the recency window
	// inspects.
	FailureLookback int `yaml:"failure_lookback"`

	// LoadThreshold is the load metric value above which a reduce_load
	// action is generated and reflection speeds up.
	LoadThreshold float64 `yaml:"load_threshold"`

	// ComplexityThreshold triggers seek_inspiration on its own.
	ComplexityThreshold float64 `yaml:"complexity_threshold"`

	// StagnationCycles triggers seek_inspiration; ReviewCycles triggers
	// review_failures and slows reflection.
	StagnationCycles int `yaml:"stagnation_cycles"`
	ReviewCycles     int `yaml:"review_cycles"`

	// Reflection intervals
	BaseInterval time.Duration `yaml:"base_interval"`
	FastInterval time.Duration `yaml:"fast_interval"`
	SlowInterval time.Duration `yaml:"slow_interval"`

	// ErrorBackoff is how long the loop sleeps after an uncaught error.
	ErrorBackoff time.Duration `yaml:"error_backoff"`

	// ConsultChance is the probability of consulting the generation service
	// for action kinds outside the always-consult set.
	ConsultChance float64 `yaml:"consult_chance"`
}

// SuggestConfig configures the generation-service client.
type SuggestConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MinInterval time.Duration `yaml:"min_interval"`
	MaxRetries  int           `yaml:"max_retries"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Level   string `yaml:"level"` // debug, info, warn, error
	Dir     string `yaml:"dir"`
	Enabled bool   `yaml:"enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "metamorph",
		Version: "0.3.0",

		Paths: PathsConfig{
			ManagedSource: "managed/system.go",
			WorkDir:       "data",
			Database:      "metamorph.db",
			TestSource:    "managed/system_checks.go",
		},

		Evolution: EvolutionConfig{
			ComplexityGrowth:  1.15,
			PerformanceFloor:  0.85,
			CoverageMinimum:   4,
			MinComponents:     5,
			IntegrationChance: 0.1,
		},

		Deliberation: DeliberationConfig{
			EpisodeCapacity:     100,
			FailureLookback:     3,
			LoadThreshold:       80,
			ComplexityThreshold: 150,
			StagnationCycles:    3,
			ReviewCycles:        10,
			BaseInterval:        10 * time.Second,
			FastInterval:        5 * time.Second,
			SlowInterval:        30 * time.Second,
			ErrorBackoff:        30 * time.Second,
			ConsultChance:       0.3,
		},

		Suggest: SuggestConfig{
			Model:       "gemini-2.0-flash",
			MinInterval: 6 * time.Second,
			MaxRetries:  3,
			Timeout:     60 * time.Second,
		},

		Logging: LoggingConfig{
			Level:   "info",
			Dir:     "data/logs",
			Enabled: true,
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DatabasePath resolves the SQLite path against the work directory.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Paths.Database) {
		return c.Paths.Database
	}
	return filepath.Join(c.Paths.WorkDir, c.Paths.Database)
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Suggest.APIKey = key
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" && c.Suggest.APIKey == "" {
		c.Suggest.APIKey = key
	}
	if dir := os.Getenv("METAMORPH_WORK_DIR"); dir != "" {
		c.Paths.WorkDir = dir
	}
}
