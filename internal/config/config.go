// Package config loads the PortView configuration from a YAML file and
// applies environment variable overrides. A missing file yields pure
// defaults; there is no command-line flag parsing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for PortView.
type Config struct {
	Account  Account      `yaml:"account"`
	Feed     Feed         `yaml:"feed"`
	Watchdog Watchdog     `yaml:"watchdog"`
	NATS     NATS         `yaml:"nats"`
	Server   Server       `yaml:"server"`
	Logging  Logging      `yaml:"logging"`
	Sim      SimulatorCfg `yaml:"sim"`
}

// Account identifies the upstream account to project. Empty means accept
// whatever account the stream reports.
type Account struct {
	ID string `yaml:"id"`
}

// Feed holds event-dispatch tuning.
type Feed struct {
	// FXTolerance is the minimum rate change that triggers a recompute.
	FXTolerance float64 `yaml:"fx_tolerance"`
}

// Watchdog configures staleness detection for outstanding requests.
type Watchdog struct {
	Interval        time.Duration `yaml:"interval"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
	FXTimeout       time.Duration `yaml:"fx_timeout"`
	WarnCooldown    time.Duration `yaml:"warn_cooldown"`
}

// NATS configures the downstream snapshot bridge. An empty URL disables
// publishing.
type NATS struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Server holds the HTTP listener configuration.
type Server struct {
	Addr string `yaml:"addr"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// SimulatorCfg toggles the in-process scripted upstream used when no real
// terminal session is attached.
type SimulatorCfg struct {
	Enabled      bool          `yaml:"enabled"`
	Seed         int64         `yaml:"seed"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

// Default returns the configuration used when no file and no overrides are
// present.
func Default() *Config {
	return &Config{
		Feed: Feed{FXTolerance: 1e-6},
		Watchdog: Watchdog{
			Interval:        10 * time.Second,
			MetadataTimeout: 30 * time.Second,
			FXTimeout:       30 * time.Second,
			WarnCooldown:    60 * time.Second,
		},
		NATS: NATS{
			URL:           "",
			SubjectPrefix: "portview.snapshots",
		},
		Server:  Server{Addr: ":8080"},
		Logging: Logging{Level: "info"},
		Sim: SimulatorCfg{
			Enabled:      true,
			Seed:         1,
			TickInterval: 500 * time.Millisecond,
		},
	}
}

// Load reads the YAML configuration at path, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORTVIEW_ACCOUNT_ID"); v != "" {
		cfg.Account.ID = v
	}
	if v := os.Getenv("PORTVIEW_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PORTVIEW_NATS_SUBJECT_PREFIX"); v != "" {
		cfg.NATS.SubjectPrefix = v
	}
	if v := os.Getenv("PORTVIEW_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PORTVIEW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PORTVIEW_SIM_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sim.Enabled = b
		}
	}
	if v := os.Getenv("PORTVIEW_SIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sim.Seed = n
		}
	}
	if v := os.Getenv("PORTVIEW_FX_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Feed.FXTolerance = f
		}
	}
	if v := os.Getenv("PORTVIEW_WATCHDOG_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Watchdog.Interval = d
		}
	}
}

// Path returns the config file path from PORTVIEW_CONFIG, defaulting to
// config.yaml in the working directory.
func Path() string {
	if v := os.Getenv("PORTVIEW_CONFIG"); v != "" {
		return v
	}
	return "config.yaml"
}
