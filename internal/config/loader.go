package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from an optional yaml file, applying environment
// overrides (OPSDECK_AUTH_SECRET overrides auth.secret and so on).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	v.SetDefault("app.name", "opsdeck-identity")
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "10s")

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", "30m")

	// An explicit default makes AutomaticEnv visible to Unmarshal.
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "opsdeck")
	v.SetDefault("auth.access_ttl", "15m")
	v.SetDefault("auth.refresh_ttl", "168h")
	v.SetDefault("auth.cookie_name", "refresh_token")
	v.SetDefault("auth.cookie_domain", "")
	v.SetDefault("auth.cookie_path", "/v1")
	v.SetDefault("auth.cookie_secure", true)

	v.SetDefault("rate.burst", 10)
	v.SetDefault("rate.per_second", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetEnvPrefix("opsdeck")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Auth.Secret == "" {
		return nil, errors.New("auth.secret is required")
	}
	return &cfg, nil
}
