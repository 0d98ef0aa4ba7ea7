package config

import "time"

// App identifies the running service.
type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

// Server holds HTTP listener settings.
type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

// DB holds PostgreSQL connection settings.
type DB struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Auth holds token lifecycle settings.
//
// AccessTTL is fixed at 15 minutes by default; both issuance paths share this
// single constant so a token minted at login and one minted on refresh age
// identically.
type Auth struct {
	Secret       string        `mapstructure:"secret"`
	Issuer       string        `mapstructure:"issuer"`
	AccessTTL    time.Duration `mapstructure:"access_ttl"`
	RefreshTTL   time.Duration `mapstructure:"refresh_ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieDomain string        `mapstructure:"cookie_domain"`
	CookiePath   string        `mapstructure:"cookie_path"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

// Rate holds per-IP rate limit settings for the credential endpoints.
type Rate struct {
	Burst     int `mapstructure:"burst"`
	PerSecond int `mapstructure:"per_second"`
}

// Log holds logger settings.
type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Config is the full service configuration.
type Config struct {
	App    App    `mapstructure:"app"`
	Server Server `mapstructure:"server"`
	DB     DB     `mapstructure:"db"`
	Auth   Auth   `mapstructure:"auth"`
	Rate   Rate   `mapstructure:"rate"`
	Log    Log    `mapstructure:"log"`
}
