// Package config loads gridstate settings from gridstate.yaml and the
// environment.
//
// Every key has a default, so an empty environment with no file yields a
// working single-node SQLite deployment. Environment variables use the
// GRIDSTATE_ prefix with dots replaced by underscores, for example
// GRIDSTATE_DATABASE_DSN overrides database.dsn.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/roach88/gridstate/internal/gateway"
	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
)

// Config is the full set of gridstate settings.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Tenant   TenantConfig   `mapstructure:"tenant"`
	REST     RESTConfig     `mapstructure:"rest"`
	Protocol ProtocolConfig `mapstructure:"protocol"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Log      LogConfig      `mapstructure:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type DatabaseConfig struct {
	Backend          string        `mapstructure:"backend"`
	DSN              string        `mapstructure:"dsn"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

type TenantConfig struct {
	Mode string `mapstructure:"mode"`

	// ServiceID is the chain that batches without a service id are applied
	// to in multi-circuit mode.
	ServiceID string `mapstructure:"service_id"`
}

type RESTConfig struct {
	Bind           string   `mapstructure:"bind"`
	Workers        int      `mapstructure:"workers"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ProtocolConfig struct {
	DefaultMin uint32                           `mapstructure:"default_min"`
	DefaultMax uint32                           `mapstructure:"default_max"`
	Routes     map[string]gateway.ProtocolRange `mapstructure:"routes"`
}

type SyncConfig struct {
	Dir          string        `mapstructure:"dir"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults returns the settings used when nothing overrides them.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Backend:          string(store.BackendSQLite),
			DSN:              "gridstate.db",
			MaxOpenConns:     10,
			StatementTimeout: 30 * time.Second,
		},
		Tenant: TenantConfig{Mode: string(gateway.ModeShared)},
		REST: RESTConfig{
			Bind:           "127.0.0.1:8080",
			Workers:        64,
			AllowedOrigins: []string{"*"},
		},
		Protocol: ProtocolConfig{DefaultMin: 0, DefaultMax: math.MaxUint32},
		Sync:     SyncConfig{PollInterval: 2 * time.Second},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Validate reports the first bad setting.
func (c Config) Validate() error {
	if _, err := store.ParseBackend(c.Database.Backend); err != nil {
		return invalid("database.backend", "%v", err)
	}
	if c.Database.DSN == "" {
		return invalid("database.dsn", "must not be empty")
	}
	if c.Database.MaxOpenConns < 0 {
		return invalid("database.max_open_conns", "must not be negative")
	}
	if c.Database.StatementTimeout < 0 {
		return invalid("database.statement_timeout", "must not be negative")
	}

	mode, err := gateway.ParseMode(c.Tenant.Mode)
	if err != nil {
		return invalid("tenant.mode", "%v", err)
	}
	if mode == gateway.ModeShared && c.Tenant.ServiceID != "" {
		return invalid("tenant.service_id", "must be empty in shared mode")
	}

	if c.REST.Bind == "" {
		return invalid("rest.bind", "must not be empty")
	}
	if c.REST.Workers <= 0 {
		return invalid("rest.workers", "must be positive")
	}

	if c.Protocol.DefaultMin > c.Protocol.DefaultMax {
		return invalid("protocol.default_min", "must not exceed protocol.default_max")
	}
	for route, r := range c.Protocol.Routes {
		if !strings.HasPrefix(route, "/") {
			return invalid("protocol.routes", "route %q must start with /", route)
		}
		if r.Min > r.Max {
			return invalid("protocol.routes", "route %q: min %d exceeds max %d", route, r.Min, r.Max)
		}
	}

	if c.Sync.Dir != "" && c.Sync.PollInterval < 0 {
		return invalid("sync.poll_interval", "must not be negative")
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "%v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format", "must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// StoreOptions maps the database section onto store.Options.
func (c Config) StoreOptions(logger *slog.Logger) store.Options {
	backend, _ := store.ParseBackend(c.Database.Backend)
	return store.Options{
		Backend:          backend,
		DSN:              c.Database.DSN,
		MaxOpenConns:     c.Database.MaxOpenConns,
		StatementTimeout: c.Database.StatementTimeout,
		Logger:           logger,
	}
}

// Mode returns the validated tenant mode.
func (c Config) Mode() gateway.Mode {
	return gateway.Mode(c.Tenant.Mode)
}

// Scope returns the default sync chain, nil in shared mode.
func (c Config) Scope() *string {
	return model.ServiceID(c.Tenant.ServiceID)
}

// ProtocolRoutes returns the per-route protocol ranges.
func (c Config) ProtocolRoutes() gateway.ProtocolRoutes {
	return gateway.ProtocolRoutes{
		Default: gateway.ProtocolRange{Min: c.Protocol.DefaultMin, Max: c.Protocol.DefaultMax},
		Routes:  c.Protocol.Routes,
	}
}

// LogLevel returns the configured slog level.
func (c Config) LogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
	}
	return l, nil
}

func invalid(key, format string, args ...any) error {
	return store.NewInvalidInputError("config", key, format, args...)
}
