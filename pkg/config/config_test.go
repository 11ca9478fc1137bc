package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssdt/authscan/pkg/defaults"
)

// TestDefaultValidates verifies the built-in configuration is usable as is.
func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Scan.SpiderPoll != 2*time.Second {
		t.Errorf("SpiderPoll default: got %v, want 2s", cfg.Scan.SpiderPoll)
	}
	if cfg.Scan.StuckPolls != 60 {
		t.Errorf("StuckPolls default: got %d, want 60", cfg.Scan.StuckPolls)
	}
	if cfg.Engine.URL != defaults.EngineURL {
		t.Errorf("Engine.URL default: got %q", cfg.Engine.URL)
	}
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  url: http://zap:8090
  api_key: k
scan:
  active_poll: 10s
  stuck_polls: 30
log:
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://zap:8090", cfg.Engine.URL)
	assert.Equal(t, "k", cfg.Engine.APIKey)
	assert.Equal(t, 10*time.Second, cfg.Scan.ActivePoll)
	assert.Equal(t, 30, cfg.Scan.StuckPolls)
	assert.Equal(t, 2*time.Second, cfg.Scan.SpiderPoll, "unset keys keep defaults")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  urll: x\n"), 0o600))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDecode_Empty(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader("  \n"), cfg))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvEngineURL:    "http://engine:1",
		EnvEngineAPIKey: "secret",
		EnvListen:       ":9999",
		EnvDatabase:     "/tmp/a.db",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "http://engine:1", cfg.Engine.URL)
	assert.Equal(t, "secret", cfg.Engine.APIKey)
	assert.Equal(t, ":9999", cfg.Server.Listen)
	assert.Equal(t, "/tmp/a.db", cfg.Storage.Database)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"no engine url", func(c *Config) { c.Engine.URL = "" }, ErrMissingRequired},
		{"bad engine scheme", func(c *Config) { c.Engine.URL = "ftp://x" }, ErrInvalidConfig},
		{"poll below one second", func(c *Config) { c.Scan.ActivePoll = 500 * time.Millisecond }, ErrInvalidConfig},
		{"zero ceiling", func(c *Config) { c.Scan.SpiderMaxDuration = 0 }, ErrInvalidConfig},
		{"zero stuck polls", func(c *Config) { c.Scan.StuckPolls = 0 }, ErrInvalidConfig},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, ErrInvalidConfig},
		{"sqlite without database", func(c *Config) { c.Storage.Database = "" }, ErrMissingRequired},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, ErrInvalidConfig},
		{"bad sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestScanConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultScan().Validate())

	partial := ScanConfig{SkipAjaxSpider: true}
	err := partial.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "scan.alert_page_size")
	assert.ErrorContains(t, err, "scan.stuck_polls")
	assert.ErrorContains(t, err, "scan.max_poll_errors")
}

func TestValidate_MemoryBackendNeedsNoDatabase(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "memory"
	cfg.Storage.Database = ""
	assert.NoError(t, cfg.Validate())
}
