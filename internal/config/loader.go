package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GRIDSTATE"

// Load reads the config file at path, or gridstate.yaml in the working
// directory when path is empty, then applies environment overrides.
//
// A missing gridstate.yaml is not an error; a missing explicit path is.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gridstate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override keys
// absent from the file.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("database.backend", d.Database.Backend)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.statement_timeout", d.Database.StatementTimeout)

	v.SetDefault("tenant.mode", d.Tenant.Mode)
	v.SetDefault("tenant.service_id", d.Tenant.ServiceID)

	v.SetDefault("rest.bind", d.REST.Bind)
	v.SetDefault("rest.workers", d.REST.Workers)
	v.SetDefault("rest.allowed_origins", d.REST.AllowedOrigins)

	v.SetDefault("protocol.default_min", d.Protocol.DefaultMin)
	v.SetDefault("protocol.default_max", d.Protocol.DefaultMax)

	v.SetDefault("sync.dir", d.Sync.Dir)
	v.SetDefault("sync.poll_interval", d.Sync.PollInterval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}
