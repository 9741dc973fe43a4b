// Package config provides configuration management for conductor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the settings file is absent or partial.
const (
	DefaultListenAddr      = ":8844"
	DefaultDBDriver        = "sqlite"
	DefaultMaxConns        = 4
	DefaultCancelGraceSecs = 30
	DefaultSweepSecs       = 5
)

// Config holds runtime settings for the conductor server. All values
// are explicit constructor inputs downstream; nothing reads this as an
// ambient global.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// DBDriver selects the storage backend: "sqlite" or "postgres".
	DBDriver string `yaml:"db_driver"`
	// DBPath is the sqlite database file (ignored for postgres).
	DBPath string `yaml:"db_path"`
	// DBDSN is the postgres connection string (ignored for sqlite).
	DBDSN    string `yaml:"db_dsn"`
	MaxConns int    `yaml:"max_conns"`

	// CancelGraceSeconds bounds how long an executor may keep running
	// after a cancel signal before the execution is forced to failed.
	CancelGraceSeconds int `yaml:"cancel_grace_seconds"`
	// SweepIntervalSeconds is how often overdue executions are swept.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`

	// BackgroundExecution makes step execution asynchronous: the
	// execute endpoint returns 202 and clients poll the event log.
	BackgroundExecution bool `yaml:"background_execution"`

	Debug bool `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:           DefaultListenAddr,
		DBDriver:             DefaultDBDriver,
		DBPath:               DBPath(),
		MaxConns:             DefaultMaxConns,
		CancelGraceSeconds:   DefaultCancelGraceSecs,
		SweepIntervalSeconds: DefaultSweepSecs,
	}
}

// CancelGrace returns the cancellation grace period as a duration.
func (c *Config) CancelGrace() time.Duration {
	return time.Duration(c.CancelGraceSeconds) * time.Second
}

// SweepInterval returns the janitor sweep interval as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// DataDir returns the conductor data directory (~/.conductor).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conductor"
	}
	return filepath.Join(home, ".conductor")
}

// DBPath returns the default sqlite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "conductor.db")
}

// SettingsPath returns the YAML settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// EnsureAll creates the data directory if it does not exist.
func EnsureAll() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// Load reads the settings file, layering it over Default(). A missing
// file is not an error; defaults are returned.
func Load() (*Config, error) {
	return LoadFile(SettingsPath())
}

// LoadFile reads the given settings file, layering it over Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}
	if cfg.CancelGraceSeconds <= 0 {
		cfg.CancelGraceSeconds = DefaultCancelGraceSecs
	}
	if cfg.SweepIntervalSeconds <= 0 {
		cfg.SweepIntervalSeconds = DefaultSweepSecs
	}
	return cfg, nil
}

// Save writes the configuration to the settings file.
func Save(cfg *Config) error {
	if err := EnsureAll(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(SettingsPath(), data, 0o644)
}
