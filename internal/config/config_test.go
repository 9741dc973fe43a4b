// Package config provides configuration management for conductor.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir     string
	origHomeDir string
}

func (s *ConfigSuite) SetupTest() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "config-test-*")
	s.Require().NoError(err)

	// Save and override HOME
	s.origHomeDir = os.Getenv("HOME")
	os.Setenv("HOME", s.tempDir)
}

func (s *ConfigSuite) TearDownTest() {
	os.Setenv("HOME", s.origHomeDir)
	os.RemoveAll(s.tempDir)
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultListenAddr, cfg.ListenAddr)
	s.Equal("sqlite", cfg.DBDriver)
	s.Equal(4, cfg.MaxConns)
	s.Equal(30, cfg.CancelGraceSeconds)
	s.Equal(5, cfg.SweepIntervalSeconds)
	s.False(cfg.BackgroundExecution)
	s.Equal(30*time.Second, cfg.CancelGrace())
	s.Equal(5*time.Second, cfg.SweepInterval())
}

// TestDataDir tests data directory path.
func (s *ConfigSuite) TestDataDir() {
	dir := DataDir()
	s.Contains(dir, ".conductor")
}

// TestDBPath tests database path.
func (s *ConfigSuite) TestDBPath() {
	path := DBPath()
	s.Contains(path, "conductor.db")
}

// TestLoadMissingFile tests that a missing settings file yields defaults.
func (s *ConfigSuite) TestLoadMissingFile() {
	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(Default(), cfg)
}

// TestLoadOverrides tests layering a settings file over defaults.
func (s *ConfigSuite) TestLoadOverrides() {
	path := filepath.Join(s.tempDir, "settings.yaml")
	content := []byte("listen_addr: \":9000\"\ncancel_grace_seconds: 60\nbackground_execution: true\n")
	s.Require().NoError(os.WriteFile(path, content, 0o644))

	cfg, err := LoadFile(path)
	s.Require().NoError(err)
	s.Equal(":9000", cfg.ListenAddr)
	s.Equal(60, cfg.CancelGraceSeconds)
	s.True(cfg.BackgroundExecution)
	// Untouched fields keep defaults.
	s.Equal("sqlite", cfg.DBDriver)
	s.Equal(4, cfg.MaxConns)
}

// TestLoadInvalidYAML tests parse failure handling.
func (s *ConfigSuite) TestLoadInvalidYAML() {
	path := filepath.Join(s.tempDir, "settings.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("listen_addr: [broken"), 0o644))

	_, err := LoadFile(path)
	s.Error(err)
}

// TestSaveRoundTrip tests Save followed by Load.
func (s *ConfigSuite) TestSaveRoundTrip() {
	cfg := Default()
	cfg.ListenAddr = ":7700"
	cfg.SweepIntervalSeconds = 11
	s.Require().NoError(Save(cfg))

	loaded, err := Load()
	s.Require().NoError(err)
	s.Equal(":7700", loaded.ListenAddr)
	s.Equal(11, loaded.SweepIntervalSeconds)
}
