// Package config loads the incident console configuration from defaults,
// an optional YAML file and INCIDENT_CONSOLE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys are separated by
// a double underscore, e.g. INCIDENT_CONSOLE_SERVER__METRICS_PORT.
const EnvPrefix = "INCIDENT_CONSOLE_"

// Session store types.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Session  SessionConfig  `koanf:"session"`
	Database DatabaseConfig `koanf:"database"`
	Notify   NotifyConfig   `koanf:"notify"`
}

// ServerConfig configures the console HTTP servers.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or text
}

// CORSConfig configures cross-origin access to the console API.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// UpstreamConfig configures the incident service client.
type UpstreamConfig struct {
	BaseURL   string        `koanf:"base_url"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
	Burst     int           `koanf:"burst"`
	PageSize  int           `koanf:"page_size"`
}

// SessionConfig selects where the console session is kept.
type SessionConfig struct {
	Store    string `koanf:"store"` // memory, file or postgres
	Key      string `koanf:"key"`
	FilePath string `koanf:"file_path"`
}

// DatabaseConfig configures the postgres session store.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int           `koanf:"max_conns"`
	MinConns        int           `koanf:"min_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// NotifyConfig configures transition notifications.
type NotifyConfig struct {
	Mattermost MattermostConfig `koanf:"mattermost"`
}

// MattermostConfig configures the Mattermost webhook notifier.
type MattermostConfig struct {
	Enabled    bool          `koanf:"enabled"`
	WebhookURL string        `koanf:"webhook_url"`
	Username   string        `koanf:"username"`
	IconURL    string        `koanf:"icon_url"`
	Channel    string        `koanf:"channel"`
	Timeout    time.Duration `koanf:"timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Upstream: UpstreamConfig{
			BaseURL:  "http://localhost:8081/api",
			Timeout:  10 * time.Second,
			PageSize: 50,
		},
		Session: SessionConfig{
			Store:    StoreMemory,
			Key:      "token",
			FilePath: "console-session.yaml",
		},
		Database: DatabaseConfig{
			MaxConns:        5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			AutoMigrate:     true,
		},
		Notify: NotifyConfig{
			Mattermost: MattermostConfig{
				Timeout: 10 * time.Second,
			},
		},
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
// Environment variables take precedence over the file, which takes
// precedence over defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envKey maps INCIDENT_CONSOLE_UPSTREAM__BASE_URL to upstream.base_url.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if u, err := url.Parse(c.Upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.base_url must be an absolute URL, got %q", c.Upstream.BaseURL))
	}
	if c.Upstream.RateLimit < 0 {
		errs = append(errs, errors.New("upstream.rate_limit must not be negative"))
	}

	switch c.Session.Store {
	case StoreMemory:
	case StoreFile:
		if c.Session.FilePath == "" {
			errs = append(errs, errors.New("session.file_path is required for the file store"))
		}
	case StorePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.store must be memory, file or postgres, got %q", c.Session.Store))
	}

	if c.Notify.Mattermost.Enabled && c.Notify.Mattermost.WebhookURL == "" {
		errs = append(errs, errors.New("notify.mattermost.webhook_url is required when mattermost is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
