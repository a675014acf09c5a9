package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultGlobalConfigIsValid(t *testing.T) {
	cfg := DefaultGlobalConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
	if got := strings.Join(cfg.Architectures, ","); got != "arm,armv6h,armv7h,aarch64" {
		t.Errorf("unexpected default architectures %s", got)
	}
	if cfg.ArtifactExt() != "tar.bz2" {
		t.Errorf("default artifact ext = %s", cfg.ArtifactExt())
	}
}

func TestLoadGlobalConfigMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yml")

	if _, err := LoadGlobalConfig(missing, false); err != nil {
		t.Errorf("optional missing config should fall back to defaults, got: %v", err)
	}
	if _, err := LoadGlobalConfig(missing, true); err == nil {
		t.Error("required missing config should fail")
	}
}

func TestLoadGlobalConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yml")
	content := `dest_dir: /srv/phantomjs
format: xz
architectures: [armv7h, aarch64]
http:
  timeout: 90s
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadGlobalConfig(path, true)
	if err != nil {
		t.Fatalf("LoadGlobalConfig failed: %v", err)
	}
	if cfg.DestDir != "/srv/phantomjs" {
		t.Errorf("DestDir = %s", cfg.DestDir)
	}
	if cfg.ArtifactExt() != "tar.xz" {
		t.Errorf("ArtifactExt = %s", cfg.ArtifactExt())
	}
	if len(cfg.Architectures) != 2 || !cfg.HasArchitecture("aarch64") || cfg.HasArchitecture("arm") {
		t.Errorf("Architectures = %v", cfg.Architectures)
	}
	if time.Duration(cfg.HTTP.Timeout) != 90*time.Second {
		t.Errorf("HTTP timeout = %v", time.Duration(cfg.HTTP.Timeout))
	}
	if !NewConfigHelpers(cfg).IsDebugMode() {
		t.Error("expected debug mode")
	}
	// untouched keys keep their defaults
	if cfg.BinaryEntry != "usr/bin/phantomjs" {
		t.Errorf("BinaryEntry = %s", cfg.BinaryEntry)
	}
}

func TestLoadGlobalConfigRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "colour: blue\n"},
		{"bad format", "format: zip\n"},
		{"bad mirror", "mirror: ftp://mirror\n"},
		{"empty architectures", "architectures: []\n"},
		{"numeric timeout", "http:\n  timeout: 10\n"},
		{"release url without version", "release_url: https://example.com/release.tar.gz\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cfg.yml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("writing config: %v", err)
			}
			if _, err := LoadGlobalConfig(path, true); err == nil {
				t.Errorf("expected %q to be rejected", tt.content)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvPrefix+"DEST_DIR", "/tmp/from-env")
	t.Setenv(EnvPrefix+"MIRROR", "http://mirror.local")

	cfg, err := LoadGlobalConfig("", false)
	if err != nil {
		t.Fatalf("LoadGlobalConfig failed: %v", err)
	}
	if cfg.DestDir != "/tmp/from-env" || cfg.Mirror != "http://mirror.local" {
		t.Errorf("env overrides not applied: dest=%s mirror=%s", cfg.DestDir, cfg.Mirror)
	}
}

func TestPublishRequiresCredentials(t *testing.T) {
	cfg := DefaultGlobalConfig()
	cfg.Publish.S3 = S3Config{Enabled: true, Endpoint: "s3.local", Bucket: "b"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected missing credentials to fail validation")
	}
	cfg.Publish.S3.AccessKey = "ak"
	cfg.Publish.S3.SecretKey = "sk"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid publish config, got: %v", err)
	}
}

func TestCreateWorkRoot(t *testing.T) {
	cfg := DefaultGlobalConfig()
	cfg.WorkDir = filepath.Join(t.TempDir(), "work")
	helpers := NewConfigHelpers(cfg)

	root, err := helpers.CreateWorkRoot("abc")
	if err != nil {
		t.Fatalf("CreateWorkRoot failed: %v", err)
	}
	if filepath.Base(root) != "phantomjs-alarm-abc" {
		t.Errorf("unexpected work root %s", root)
	}
	if _, err := helpers.CreateWorkRoot("abc"); err == nil {
		t.Error("reusing a run id must fail")
	}
}
