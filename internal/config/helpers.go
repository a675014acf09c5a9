package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ConfigHelpers provides convenient access to resolved configuration values
type ConfigHelpers struct {
	config *GlobalConfig
}

// NewConfigHelpers creates a new config helpers instance
func NewConfigHelpers(config *GlobalConfig) *ConfigHelpers {
	return &ConfigHelpers{config: config}
}

// DestDir returns the absolute path to the archive destination directory
func (c *ConfigHelpers) DestDir() (string, error) {
	return filepath.Abs(c.config.DestDir)
}

// TempDir returns the parent directory for per-run work roots
func (c *ConfigHelpers) TempDir() string {
	if c.config.WorkDir == "" {
		return os.TempDir()
	}
	return c.config.WorkDir
}

// HTTPTimeout returns the client timeout, zero meaning none
func (c *ConfigHelpers) HTTPTimeout() time.Duration {
	return time.Duration(c.config.HTTP.Timeout)
}

// LogLevel returns the configured log level
func (c *ConfigHelpers) LogLevel() string {
	return c.config.Logging.Level
}

// IsDebugMode returns true if debug logging is enabled
func (c *ConfigHelpers) IsDebugMode() bool {
	return c.config.Logging.Level == "debug"
}

// GetConfig returns the underlying global config
func (c *ConfigHelpers) GetConfig() *GlobalConfig {
	return c.config
}

// CreateDestDir ensures the destination directory exists and returns its absolute path
func (c *ConfigHelpers) CreateDestDir() (string, error) {
	destDir, err := c.DestDir()
	if err != nil {
		return "", fmt.Errorf("resolving destination directory: %w", err)
	}
	return destDir, createDirIfNotExists(destDir)
}

// CreateWorkRoot creates a fresh, uniquely named work root below TempDir.
// The caller owns removal.
func (c *ConfigHelpers) CreateWorkRoot(runID string) (string, error) {
	parent := c.TempDir()
	if err := createDirIfNotExists(parent); err != nil {
		return "", fmt.Errorf("creating temp parent %s: %w", parent, err)
	}
	root := filepath.Join(parent, "phantomjs-alarm-"+runID)
	if err := os.Mkdir(root, 0700); err != nil {
		return "", fmt.Errorf("creating work root: %w", err)
	}
	return root, nil
}

// Helper function to create directories
func createDirIfNotExists(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
