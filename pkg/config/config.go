// Package config loads authscan settings: built-in defaults, then an
// optional YAML file, then environment overrides, then validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ssdt/authscan/pkg/defaults"
	"github.com/ssdt/authscan/pkg/duration"
)

// Environment variables that override file settings.
const (
	EnvEngineURL    = "AUTHSCAN_ENGINE_URL"
	EnvEngineAPIKey = "AUTHSCAN_ENGINE_API_KEY"
	EnvListen       = "AUTHSCAN_LISTEN"
	EnvDatabase     = "AUTHSCAN_DB"
)

// Config holds all settings.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Scan    ScanConfig    `yaml:"scan"`
	Log     LogConfig     `yaml:"log"`
	Tracing TracingConfig `yaml:"tracing"`
}

// EngineConfig locates the scanning engine.
type EngineConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	RPS     float64       `yaml:"rps"`
	Timeout time.Duration `yaml:"timeout"`
	Proxy   string        `yaml:"proxy"`
}

// ServerConfig controls the HTTP trigger.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects persistence.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend   string        `yaml:"backend"`
	Database  string        `yaml:"database"`
	BlobDir   string        `yaml:"blob_dir"`
	HandleTTL time.Duration `yaml:"handle_ttl"`
}

// ScanConfig tunes the workflow. Poll intervals must be at least one
// second.
type ScanConfig struct {
	SpiderPoll            time.Duration `yaml:"spider_poll"`
	AjaxPoll              time.Duration `yaml:"ajax_poll"`
	PassivePoll           time.Duration `yaml:"passive_poll"`
	ActivePoll            time.Duration `yaml:"active_poll"`
	SpiderMaxDuration     time.Duration `yaml:"spider_max_duration"`
	AjaxMaxDuration       time.Duration `yaml:"ajax_max_duration"`
	PassiveMaxDuration    time.Duration `yaml:"passive_max_duration"`
	ActiveMaxDuration     time.Duration `yaml:"active_max_duration"`
	ActiveRuleMaxDuration time.Duration `yaml:"active_rule_max_duration"`
	CeilingSlack          time.Duration `yaml:"ceiling_slack"`
	StuckPolls            int           `yaml:"stuck_polls"`
	MaxPollErrors         int           `yaml:"max_poll_errors"`
	SpiderMaxDepth        int           `yaml:"spider_max_depth"`
	SpiderMaxChildren     int           `yaml:"spider_max_children"`
	SpiderThreads         int           `yaml:"spider_threads"`
	AjaxMaxDepth          int           `yaml:"ajax_max_depth"`
	AjaxBrowsers          int           `yaml:"ajax_browsers"`
	ActiveThreadsPerHost  int           `yaml:"active_threads_per_host"`
	ActiveDelayMs         int           `yaml:"active_delay_ms"`
	AlertPageSize         int           `yaml:"alert_page_size"`
	RetryAttempts         int           `yaml:"retry_attempts"`
	RetryBaseDelay        time.Duration `yaml:"retry_base_delay"`
	SkipAjaxSpider        bool          `yaml:"skip_ajax_spider"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// TracingConfig enables OTLP export.
type TracingConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			URL:     defaults.EngineURL,
			RPS:     defaults.EngineRPS,
			Timeout: duration.EngineCall,
		},
		Server: ServerConfig{
			Listen:          defaults.Listen,
			ReadTimeout:     duration.ServerRead,
			ShutdownTimeout: duration.ServerShutdown,
		},
		Storage: StorageConfig{
			Backend:   "sqlite",
			Database:  defaults.Database,
			BlobDir:   defaults.BlobDir,
			HandleTTL: duration.HandleTTL,
		},
		Scan: DefaultScan(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultScan returns the default workflow tuning.
func DefaultScan() ScanConfig {
	return ScanConfig{
		SpiderPoll:            duration.SpiderPoll,
		AjaxPoll:              duration.AjaxPoll,
		PassivePoll:           duration.PassivePoll,
		ActivePoll:            duration.ActivePoll,
		SpiderMaxDuration:     duration.SpiderMax,
		AjaxMaxDuration:       duration.AjaxMax,
		PassiveMaxDuration:    duration.PassiveMax,
		ActiveMaxDuration:     duration.ActiveMax,
		ActiveRuleMaxDuration: duration.ActiveRuleMax,
		CeilingSlack:          duration.CeilingSlack,
		StuckPolls:            defaults.StuckPolls,
		MaxPollErrors:         defaults.MaxPollErrors,
		SpiderMaxDepth:        defaults.SpiderMaxDepth,
		SpiderMaxChildren:     defaults.SpiderMaxChildren,
		SpiderThreads:         defaults.SpiderThreads,
		AjaxMaxDepth:          defaults.AjaxMaxDepth,
		AjaxBrowsers:          defaults.AjaxBrowsers,
		ActiveThreadsPerHost:  defaults.ActiveThreadsPerHost,
		ActiveDelayMs:         defaults.ActiveDelayMs,
		AlertPageSize:         defaults.AlertPageSize,
		RetryAttempts:         defaults.RetryAttempts,
		RetryBaseDelay:        duration.RetryBase,
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()
		if err := Decode(f, cfg); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode merges YAML from r into cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("config: read: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables read via getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvEngineURL); v != "" {
		c.Engine.URL = v
	}
	if v := getenv(EnvEngineAPIKey); v != "" {
		c.Engine.APIKey = v
	}
	if v := getenv(EnvListen); v != "" {
		c.Server.Listen = v
	}
	if v := getenv(EnvDatabase); v != "" {
		c.Storage.Database = v
	}
}

// Validate checks required fields and bounds.
func (c *Config) Validate() error {
	var errs []error

	if c.Engine.URL == "" {
		errs = append(errs, fmt.Errorf("%w: engine.url", ErrMissingRequired))
	} else if u, err := url.Parse(c.Engine.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("%w: engine.url %q must be an http(s) URL", ErrInvalidConfig, c.Engine.URL))
	}
	if c.Engine.RPS < 0 {
		errs = append(errs, fmt.Errorf("%w: engine.rps must not be negative", ErrInvalidConfig))
	}

	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Database == "" {
			errs = append(errs, fmt.Errorf("%w: storage.database", ErrMissingRequired))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("%w: storage.backend %q (want sqlite or memory)", ErrInvalidConfig, c.Storage.Backend))
	}
	if c.Storage.BlobDir == "" {
		errs = append(errs, fmt.Errorf("%w: storage.blob_dir", ErrMissingRequired))
	}

	errs = append(errs, c.Scan.problems()...)

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: log.format %q (want text or json)", ErrInvalidConfig, c.Log.Format))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("%w: tracing.sample_ratio must be within [0,1]", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// Validate checks the workflow tuning on its own, for callers that build a
// ScanConfig without going through Load.
func (s ScanConfig) Validate() error {
	return errors.Join(s.problems()...)
}

func (s ScanConfig) problems() []error {
	var errs []error
	polls := map[string]time.Duration{
		"scan.spider_poll":  s.SpiderPoll,
		"scan.ajax_poll":    s.AjaxPoll,
		"scan.passive_poll": s.PassivePoll,
		"scan.active_poll":  s.ActivePoll,
	}
	for _, name := range []string{"scan.spider_poll", "scan.ajax_poll", "scan.passive_poll", "scan.active_poll"} {
		if polls[name] < duration.MinPoll {
			errs = append(errs, fmt.Errorf("%w: %s %s is below %s", ErrInvalidConfig, name, polls[name], duration.MinPoll))
		}
	}
	maxima := []struct {
		name string
		d    time.Duration
	}{
		{"scan.spider_max_duration", s.SpiderMaxDuration},
		{"scan.ajax_max_duration", s.AjaxMaxDuration},
		{"scan.passive_max_duration", s.PassiveMaxDuration},
		{"scan.active_max_duration", s.ActiveMaxDuration},
	}
	for _, m := range maxima {
		if m.d <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, m.name))
		}
	}
	if s.StuckPolls < 1 {
		errs = append(errs, fmt.Errorf("%w: scan.stuck_polls must be at least 1", ErrInvalidConfig))
	}
	if s.MaxPollErrors < 1 {
		errs = append(errs, fmt.Errorf("%w: scan.max_poll_errors must be at least 1", ErrInvalidConfig))
	}
	if s.AlertPageSize < 1 {
		errs = append(errs, fmt.Errorf("%w: scan.alert_page_size must be at least 1", ErrInvalidConfig))
	}
	if s.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("%w: scan.retry_attempts must be at least 1", ErrInvalidConfig))
	}
	return errs
}
