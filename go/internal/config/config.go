// Package config assembles the process configuration. Values come from the
// built-in defaults, then an optional YAML file, then the environment, each
// layer overriding the one before.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/scoresync/go/internal/judging"
	"github.com/mcdev12/scoresync/go/internal/outbox"
	"github.com/mcdev12/scoresync/go/internal/pages"
	"github.com/mcdev12/scoresync/go/internal/reconciler"
	"github.com/mcdev12/scoresync/go/internal/socket"
	"github.com/mcdev12/scoresync/go/internal/store"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SCORESYNC_"

// Storage backends
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	LogLevel  string `env:"LOG_LEVEL" yaml:"log_level"`
	LogFormat string `env:"LOG_FORMAT" yaml:"log_format"`

	// ServerURL is the websocket base of the scoring server.
	ServerURL string `env:"SERVER_URL" yaml:"server_url"`
	// APIURL is the REST base used for token refresh.
	APIURL    string `env:"API_URL" yaml:"api_url"`
	JWTSecret string `env:"JWT_SECRET" yaml:"jwt_secret"`

	Store     StoreConfig     `envPrefix:"STORE_" yaml:"store"`
	Socket    socket.Config   `envPrefix:"SOCKET_" yaml:"socket"`
	KeepAlive outbox.Config   `envPrefix:"KEEPALIVE_" yaml:"keepalive"`
	Judging   judging.Config  `envPrefix:"JUDGING_" yaml:"judging"`
	Pages     PagesConfig     `envPrefix:"PAGES_" yaml:"pages"`
	Telemetry TelemetryConfig `envPrefix:"OTEL_" yaml:"telemetry"`

	ResetWindow time.Duration `env:"RESET_WINDOW" yaml:"reset_window"`
}

type StoreConfig struct {
	Backend    string               `env:"BACKEND" yaml:"backend"`
	SQLitePath string               `env:"SQLITE_PATH" yaml:"sqlite_path"`
	Namespace  string               `env:"NAMESPACE" yaml:"namespace"`
	Postgres   store.PostgresConfig `yaml:"postgres"`
}

type PagesConfig struct {
	Addr       string                `env:"ADDR" yaml:"addr"`
	NATS       bool                  `env:"NATS_ENABLED" yaml:"nats_enabled"`
	JetStream  pages.JetStreamConfig `envPrefix:"NATS_" yaml:"jetstream"`
	Connection pageConnection        `yaml:"connection"`
}

type pageConnection struct {
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" yaml:"write_timeout"`
	PingInterval time.Duration `env:"PING_INTERVAL" yaml:"ping_interval"`
}

type TelemetryConfig struct {
	Enabled     bool   `env:"ENABLED" yaml:"enabled"`
	Endpoint    string `env:"ENDPOINT" yaml:"endpoint"`
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	conn := pages.DefaultConnectionConfig()
	return Config{
		LogLevel:  "info",
		LogFormat: "console",
		ServerURL: "wss://live.example.org",
		APIURL:    "https://live.example.org/api/",
		Store: StoreConfig{
			Backend:    BackendSQLite,
			SQLitePath: "scoresync.db",
			Namespace:  "default",
			Postgres:   store.DefaultPostgresConfig(),
		},
		Socket:    socket.DefaultConfig(),
		KeepAlive: outbox.DefaultConfig(),
		Judging:   judging.DefaultConfig(),
		Pages: PagesConfig{
			Addr:      "127.0.0.1:8090",
			JetStream: pages.DefaultJetStreamConfig(),
			Connection: pageConnection{
				WriteTimeout: conn.WriteTimeout,
				PingInterval: conn.PingInterval,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:     true,
			ServiceName: "scoresync",
		},
		ResetWindow: reconciler.DefaultResetWindow,
	}
}

// Load builds the configuration. A missing .env file is not an error; a
// missing YAML file named explicitly is.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := Default()
	if path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite backend"))
		}
	case BackendPostgres, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://") {
		errs = append(errs, fmt.Errorf("server_url must be a ws:// or wss:// url, got %q", c.ServerURL))
	}
	if c.Socket.RetryInterval <= 0 {
		errs = append(errs, errors.New("socket.retry_interval must be positive"))
	}
	if c.KeepAlive.Interval <= 0 {
		errs = append(errs, errors.New("keepalive.interval must be positive"))
	}
	return errors.Join(errs...)
}

// PageConnection returns the websocket settings for the presentation hub.
func (c Config) PageConnection() pages.ConnectionConfig {
	conn := pages.DefaultConnectionConfig()
	conn.WriteTimeout = c.Pages.Connection.WriteTimeout
	conn.PingInterval = c.Pages.Connection.PingInterval
	return conn
}
