package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAPIBaseURL         = "http://localhost:8000"
	defaultHTTPAddr           = ":8099"
	defaultDBPath             = "smartlight.db"
	defaultRequestTimeout     = 15 * time.Second
	defaultRefreshTimeout     = 10 * time.Second
	defaultPushReconnectDelay = 3 * time.Second
)

// Config stores runtime settings. Values come from defaults, then the
// optional YAML file, then environment variables.
type Config struct {
	APIBaseURL         string
	DBPath             string
	HTTPAddr           string
	LogLevel           slog.Level
	LogFormat          string
	RequestTimeout     time.Duration
	RefreshTimeout     time.Duration
	PushReconnectDelay time.Duration
	// ResyncInterval is the period of full refetches; zero disables them.
	ResyncInterval time.Duration
	SentryDSN      string
}

type fileConfig struct {
	APIBaseURL         string `yaml:"api_base_url"`
	DBPath             string `yaml:"db_path"`
	HTTPAddr           string `yaml:"http_addr"`
	LogLevel           string `yaml:"log_level"`
	LogFormat          string `yaml:"log_format"`
	RequestTimeout     string `yaml:"request_timeout"`
	RefreshTimeout     string `yaml:"refresh_timeout"`
	PushReconnectDelay string `yaml:"push_reconnect_delay"`
	ResyncInterval     string `yaml:"resync_interval"`
	SentryDSN          string `yaml:"sentry_dsn"`
}

func defaults() Config {
	return Config{
		APIBaseURL:         defaultAPIBaseURL,
		DBPath:             defaultDBPath,
		HTTPAddr:           defaultHTTPAddr,
		LogLevel:           slog.LevelInfo,
		LogFormat:          "json",
		RequestTimeout:     defaultRequestTimeout,
		RefreshTimeout:     defaultRefreshTimeout,
		PushReconnectDelay: defaultPushReconnectDelay,
	}
}

// Load builds Config. path may be empty, in which case only defaults and
// the environment apply.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	setString(&c.APIBaseURL, fc.APIBaseURL)
	setString(&c.DBPath, fc.DBPath)
	setString(&c.HTTPAddr, fc.HTTPAddr)
	setString(&c.LogFormat, fc.LogFormat)
	setString(&c.SentryDSN, fc.SentryDSN)
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	for _, d := range []struct {
		name   string
		raw    string
		dst    *time.Duration
		zeroOK bool
	}{
		{"request_timeout", fc.RequestTimeout, &c.RequestTimeout, false},
		{"refresh_timeout", fc.RefreshTimeout, &c.RefreshTimeout, false},
		{"push_reconnect_delay", fc.PushReconnectDelay, &c.PushReconnectDelay, false},
		{"resync_interval", fc.ResyncInterval, &c.ResyncInterval, true},
	} {
		if d.raw == "" {
			continue
		}
		value, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil || value < 0 || (value == 0 && !d.zeroOK) {
			return fmt.Errorf("parsing config: invalid %s %q", d.name, d.raw)
		}
		*d.dst = value
	}
	return nil
}

func (c *Config) applyEnv() {
	c.APIBaseURL = getenv("SMARTLIGHT_API_BASE_URL", c.APIBaseURL)
	c.DBPath = getenv("SMARTLIGHT_DB_PATH", c.DBPath)
	c.HTTPAddr = getenv("SMARTLIGHT_HTTP_ADDR", c.HTTPAddr)
	c.LogFormat = getenv("LOG_FORMAT", c.LogFormat)
	c.SentryDSN = getenv("SENTRY_DSN", c.SentryDSN)
	if raw, ok := os.LookupEnv("LOG_LEVEL"); ok && strings.TrimSpace(raw) != "" {
		c.LogLevel = parseLogLevel(raw)
	}
	c.RequestTimeout = parseDuration("SMARTLIGHT_REQUEST_TIMEOUT", c.RequestTimeout)
	c.RefreshTimeout = parseDuration("SMARTLIGHT_REFRESH_TIMEOUT", c.RefreshTimeout)
	c.PushReconnectDelay = parseDuration("SMARTLIGHT_PUSH_RECONNECT_DELAY", c.PushReconnectDelay)
	c.ResyncInterval = parseDuration("SMARTLIGHT_RESYNC_INTERVAL", c.ResyncInterval)
}

func (c Config) validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("invalid api_base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api_base_url %q: scheme must be http or https", c.APIBaseURL)
	}
	if u.Host == "" {
		return errors.New("invalid api_base_url: missing host")
	}
	return nil
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

func setString(dst *string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*dst = trimmed
	}
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
