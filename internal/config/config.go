package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazz-dev/statusrelay/internal/registry"
)

const (
	defaultPollTimeout  = 60 * time.Second
	defaultFetchTimeout = 10 * time.Second
	defaultAddress      = ":8080"
	defaultStoragePath  = "statusrelay.db"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// Endpoint describes a single health endpoint.
type Endpoint struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Timeout Duration          `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// TelegramConfig holds bot settings.
type TelegramConfig struct {
	Token       string   `yaml:"token"`
	PollTimeout Duration `yaml:"poll_timeout"`
}

// FetchConfig holds fetch defaults.
type FetchConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// ServerConfig holds admin HTTP server settings. An empty address disables it.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig holds invocation log settings. An empty path disables it.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// TelemetryConfig selects OpenTelemetry exporters.
type TelemetryConfig struct {
	Metrics string `yaml:"metrics"`
	Traces  string `yaml:"traces"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root application configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Endpoints []Endpoint      `yaml:"endpoints"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

var (
	validMetrics = map[string]bool{"": true, "none": true, "prometheus": true, "stdout": true, "otlp": true}
	validTraces  = map[string]bool{"": true, "none": true, "stdout": true, "otlp": true}
	validFormats = map[string]bool{"text": true, "json": true}
)

// Unmarshal into a raw intermediate so duration errors name their field and
// absent server/storage keys can be told apart from explicit "".
type rawEndpoint struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Timeout string            `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

type rawConfig struct {
	Telegram struct {
		Token       string `yaml:"token"`
		PollTimeout string `yaml:"poll_timeout"`
	} `yaml:"telegram"`
	Endpoints []rawEndpoint `yaml:"endpoints"`
	Fetch     struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"fetch"`
	Server struct {
		Address *string `yaml:"address"`
	} `yaml:"server"`
	Storage struct {
		Path *string `yaml:"path"`
	} `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads, expands, parses, and validates the config file at path.
// ${VAR} references must name set environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded, err := ExpandEnvStrict(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding config: %w", err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return build(raw)
}

// FromEnv builds a configuration from TELEGRAM_API_TOKEN, PROD_URL and
// SERVICES_URL, yielding endpoints "prod" and "services" for whichever URLs are set.
func FromEnv() (*Config, error) {
	var raw rawConfig
	raw.Telegram.Token = os.Getenv("TELEGRAM_API_TOKEN")
	for _, ev := range []struct{ name, env string }{
		{"prod", "PROD_URL"},
		{"services", "SERVICES_URL"},
	} {
		if u := os.Getenv(ev.env); u != "" {
			raw.Endpoints = append(raw.Endpoints, rawEndpoint{Name: ev.name, URL: u})
		}
	}
	if len(raw.Endpoints) == 0 {
		return nil, errors.New("no config file and no endpoint environment variables: set PROD_URL or SERVICES_URL")
	}
	return build(raw)
}

// LoadOrEnv loads path, falling back to FromEnv when path does not exist and
// was not explicitly requested.
func LoadOrEnv(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return FromEnv()
	}
	return cfg, err
}

func build(raw rawConfig) (*Config, error) {
	cfg := &Config{
		Telemetry: raw.Telemetry,
		Log:       raw.Log,
	}
	cfg.Telegram.Token = raw.Telegram.Token

	// Apply defaults.
	cfg.Server.Address = defaultAddress
	if raw.Server.Address != nil {
		cfg.Server.Address = *raw.Server.Address
	}
	cfg.Storage.Path = defaultStoragePath
	if raw.Storage.Path != nil {
		cfg.Storage.Path = *raw.Storage.Path
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	var err error
	if cfg.Telegram.PollTimeout, err = parseDuration(raw.Telegram.PollTimeout, defaultPollTimeout); err != nil {
		return nil, fmt.Errorf("telegram: invalid poll_timeout %q: %w", raw.Telegram.PollTimeout, err)
	}
	if cfg.Fetch.Timeout, err = parseDuration(raw.Fetch.Timeout, defaultFetchTimeout); err != nil {
		return nil, fmt.Errorf("fetch: invalid timeout %q: %w", raw.Fetch.Timeout, err)
	}

	if !validMetrics[cfg.Telemetry.Metrics] {
		return nil, fmt.Errorf("telemetry: invalid metrics exporter %q (must be prometheus, stdout, otlp, or none)", cfg.Telemetry.Metrics)
	}
	if !validTraces[cfg.Telemetry.Traces] {
		return nil, fmt.Errorf("telemetry: invalid traces exporter %q (must be stdout, otlp, or none)", cfg.Telemetry.Traces)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, fmt.Errorf("log: invalid level %q", cfg.Log.Level)
	}
	if !validFormats[cfg.Log.Format] {
		return nil, fmt.Errorf("log: invalid format %q (must be text or json)", cfg.Log.Format)
	}

	if len(raw.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint must be configured")
	}

	names := make(map[string]bool, len(raw.Endpoints))
	for i, re := range raw.Endpoints {
		if re.Name == "" {
			return nil, fmt.Errorf("endpoint[%d]: name is required", i)
		}
		if names[re.Name] {
			return nil, fmt.Errorf("duplicate endpoint name %q", re.Name)
		}
		names[re.Name] = true

		if re.URL == "" {
			return nil, fmt.Errorf("endpoint %q: url is required", re.Name)
		}
		u, err := url.Parse(re.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("endpoint %q: invalid url %q (must be an absolute http or https URL)", re.Name, re.URL)
		}

		ep := Endpoint{
			Name:    re.Name,
			URL:     re.URL,
			Headers: re.Headers,
		}
		// Zero timeout means the fetch default.
		if ep.Timeout, err = parseDuration(re.Timeout, 0); err != nil {
			return nil, fmt.Errorf("endpoint %q: invalid timeout %q: %w", re.Name, re.Timeout, err)
		}

		cfg.Endpoints = append(cfg.Endpoints, ep)
	}

	return cfg, nil
}

func parseDuration(s string, def time.Duration) (Duration, error) {
	if s == "" {
		return Duration{def}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Duration{}, err
	}
	if d < 0 {
		return Duration{}, fmt.Errorf("must not be negative")
	}
	return Duration{d}, nil
}

// ValidateTelegram checks the settings only the bot runtime needs.
func (c *Config) ValidateTelegram() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram: token is required (set telegram.token or TELEGRAM_API_TOKEN)")
	}
	return nil
}

// Registry builds the endpoint registry in configuration order.
func (c *Config) Registry() (*registry.Registry, error) {
	eps := make([]registry.Endpoint, len(c.Endpoints))
	for i, e := range c.Endpoints {
		eps[i] = registry.Endpoint{
			Name:    e.Name,
			URL:     e.URL,
			Timeout: e.Timeout.Duration,
			Headers: e.Headers,
		}
	}
	return registry.New(eps)
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
