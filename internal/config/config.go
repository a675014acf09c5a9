package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/phantomjs-arm/phantomjs-alarm/internal/utils/general/slice"
)

const (
	DefaultConfigFile = "phantomjs-alarm.yml"
	EnvPrefix         = "PHANTOMJS_ALARM_"

	FormatBzip2 = "bz2"
	FormatXz    = "xz"
)

// DefaultArchitectures is the fixed sweep order.
var DefaultArchitectures = []string{"arm", "armv6h", "armv7h", "aarch64"}

// GlobalConfig holds every tunable of a run.
type GlobalConfig struct {
	Project       string        `yaml:"project"`
	DestDir       string        `yaml:"dest_dir"`
	WorkDir       string        `yaml:"work_dir"`
	Mirror        string        `yaml:"mirror"`
	RepoPath      string        `yaml:"repo_path"`
	PackageExt    string        `yaml:"package_ext"`
	Architectures []string      `yaml:"architectures"`
	BinaryEntry   string        `yaml:"binary_entry"`
	ReleaseURL    string        `yaml:"release_url"`
	ReleaseFiles  []string      `yaml:"release_files"`
	Format        string        `yaml:"format"`
	Keyring       string        `yaml:"keyring"`
	Progress      bool          `yaml:"progress"`
	ReportDir     string        `yaml:"report_dir"`
	HTTP          HTTPConfig    `yaml:"http"`
	Logging       LoggingConfig `yaml:"logging"`
	Publish       PublishConfig `yaml:"publish"`
}

type HTTPConfig struct {
	Timeout   Duration `yaml:"timeout"`
	UserAgent string   `yaml:"user_agent"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PublishConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config configures optional upload of new artifacts. Keys come from the environment only.
type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// Duration is a time.Duration that unmarshals from "90s"-style YAML strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// DefaultGlobalConfig returns the built-in configuration.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Project:       "phantomjs",
		DestDir:       "downloads",
		Mirror:        "http://mirror.archlinuxarm.org",
		RepoPath:      "{arch}/community/",
		PackageExt:    ".pkg.tar.xz",
		Architectures: append([]string(nil), DefaultArchitectures...),
		BinaryEntry:   "usr/bin/phantomjs",
		ReleaseURL:    "https://github.com/ariya/phantomjs/archive/{version}.tar.gz",
		ReleaseFiles:  []string{"examples", "LICENSE.BSD", "third-party.txt", "README.md", "ChangeLog"},
		Format:        FormatBzip2,
		Progress:      true,
		HTTP: HTTPConfig{
			Timeout:   Duration(10 * time.Minute),
			UserAgent: "phantomjs-alarm/1.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Publish: PublishConfig{
			S3: S3Config{Region: "us-east-1"},
		},
	}
}

// LoadGlobalConfig reads path on top of the defaults, validates it and applies
// environment overrides. A missing file is only an error when required is set.
func LoadGlobalConfig(path string, required bool) (*GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := parseYAMLConfig(data, cfg); err != nil {
				return nil, fmt.Errorf("loading %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// a missing .env is fine
	_ = godotenv.Load()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseYAMLConfig validates raw YAML against the schema and decodes it into cfg.
func parseYAMLConfig(data []byte, cfg *GlobalConfig) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := ValidateConfigYAML(data); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *GlobalConfig) {
	if v := os.Getenv(EnvPrefix + "DEST_DIR"); v != "" {
		cfg.DestDir = v
	}
	if v := os.Getenv(EnvPrefix + "MIRROR"); v != "" {
		cfg.Mirror = v
	}
	if v := os.Getenv(EnvPrefix + "S3_ACCESS_KEY"); v != "" {
		cfg.Publish.S3.AccessKey = v
	}
	if v := os.Getenv(EnvPrefix + "S3_SECRET_KEY"); v != "" {
		cfg.Publish.S3.SecretKey = v
	}
}

// Validate checks the semantic constraints the schema cannot express.
func (c *GlobalConfig) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("project must not be empty")
	}
	if c.DestDir == "" {
		return fmt.Errorf("dest_dir must not be empty")
	}
	if len(c.Architectures) == 0 {
		return fmt.Errorf("at least one architecture is required")
	}
	if c.Format != FormatBzip2 && c.Format != FormatXz {
		return fmt.Errorf("unsupported format %q (expected %s or %s)", c.Format, FormatBzip2, FormatXz)
	}
	if !strings.HasPrefix(c.PackageExt, ".pkg.tar.") {
		return fmt.Errorf("package_ext %q must start with .pkg.tar.", c.PackageExt)
	}
	if c.BinaryEntry == "" {
		return fmt.Errorf("binary_entry must not be empty")
	}
	if !strings.Contains(c.ReleaseURL, "{version}") {
		return fmt.Errorf("release_url %q must contain {version}", c.ReleaseURL)
	}
	if c.Publish.S3.Enabled {
		s3 := c.Publish.S3
		switch {
		case s3.Endpoint == "":
			return fmt.Errorf("publish.s3.endpoint is required when publishing is enabled")
		case s3.Bucket == "":
			return fmt.Errorf("publish.s3.bucket is required when publishing is enabled")
		case s3.AccessKey == "" || s3.SecretKey == "":
			return fmt.Errorf("%sS3_ACCESS_KEY and %sS3_SECRET_KEY are required when publishing is enabled", EnvPrefix, EnvPrefix)
		}
	}
	return nil
}

// ArtifactExt returns the output archive extension for the configured format.
func (c *GlobalConfig) ArtifactExt() string {
	if c.Format == FormatXz {
		return "tar.xz"
	}
	return "tar.bz2"
}

// HasArchitecture reports whether arch is one of the configured architectures.
func (c *GlobalConfig) HasArchitecture(arch string) bool {
	return slice.Contains(c.Architectures, arch)
}
