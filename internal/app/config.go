package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Config represents the runtime configuration for the FileHub backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Sessions    SessionConfig     `mapstructure:"sessions"`
	Seats       SeatConfig        `mapstructure:"seats"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options. When enabled, Redis backs
// both the cache store and the seat allocator, which makes the seat pool
// shared across server instances.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures authentication settings.
type AuthConfig struct {
	JWT   JWTSettings       `mapstructure:"jwt"`
	Local LocalAuthSettings `mapstructure:"local"`
}

// JWTSettings configures the signed token pair.
type JWTSettings struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	AccessTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// LocalAuthSettings defines lockout behaviour for password authentication.
type LocalAuthSettings struct {
	LockoutThreshold int           `mapstructure:"lockout_threshold"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
}

// SessionConfig tunes session lifetimes and concurrency limits.
type SessionConfig struct {
	IdleTimeout      time.Duration  `mapstructure:"idle_timeout"`
	AbsoluteTimeout  time.Duration  `mapstructure:"absolute_timeout"`
	OverflowStrategy string         `mapstructure:"overflow_strategy"`
	RoleLimits       map[string]int `mapstructure:"role_limits"`
	LoginRateLimit   int            `mapstructure:"login_rate_limit"`
}

// SeatConfig sizes the concurrent seat pool.
type SeatConfig struct {
	Total         int `mapstructure:"total"`
	AdminReserved int `mapstructure:"admin_reserved"`
}

// MaintenanceConfig tunes background sweeps.
type MaintenanceConfig struct {
	SessionSchedule       string        `mapstructure:"session_schedule"`
	ReconcileSchedule     string        `mapstructure:"reconcile_schedule"`
	WSSchedule            string        `mapstructure:"ws_schedule"`
	SnapshotSchedule      string        `mapstructure:"snapshot_schedule"`
	SnapshotRetentionDays int           `mapstructure:"snapshot_retention_days"`
	StaleWSCutoff         time.Duration `mapstructure:"stale_ws_cutoff"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("FILEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations that would misbehave at runtime. All
// problems are reported at once rather than one per restart.
func (c *Config) Validate() error {
	var errs error

	if c.Seats.Total < 1 {
		errs = appendConfigError(errs, "seats.total must be at least 1")
	}
	if c.Seats.AdminReserved < 0 {
		errs = appendConfigError(errs, "seats.admin_reserved must not be negative")
	}
	if c.Seats.AdminReserved >= c.Seats.Total {
		errs = appendConfigError(errs, "seats.admin_reserved must be smaller than seats.total")
	}

	switch strings.ToLower(c.Sessions.OverflowStrategy) {
	case "", "deny", "kick_oldest", "kick_idle":
	default:
		errs = appendConfigError(errs, fmt.Sprintf("sessions.overflow_strategy %q is not one of deny, kick_oldest, kick_idle", c.Sessions.OverflowStrategy))
	}

	for role, limit := range c.Sessions.RoleLimits {
		if limit < 0 {
			errs = appendConfigError(errs, fmt.Sprintf("sessions.role_limits.%s must not be negative", role))
		}
	}

	if c.Sessions.IdleTimeout < 0 || c.Sessions.AbsoluteTimeout < 0 {
		errs = appendConfigError(errs, "session timeouts must not be negative")
	}

	return errs
}

func appendConfigError(errs error, msg string) error {
	return multierr.Append(errs, fmt.Errorf("config: %s", msg))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/filehub.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.jwt.issuer", "filehub")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.jwt.refresh_token_ttl", "168h") // 7 days
	v.SetDefault("auth.local.lockout_threshold", 5)
	v.SetDefault("auth.local.lockout_duration", "15m")

	v.SetDefault("sessions.idle_timeout", "30m")
	v.SetDefault("sessions.absolute_timeout", "12h")
	v.SetDefault("sessions.overflow_strategy", "deny")
	v.SetDefault("sessions.login_rate_limit", 30)

	v.SetDefault("seats.total", 50)
	v.SetDefault("seats.admin_reserved", 2)

	v.SetDefault("maintenance.session_schedule", "*/5 * * * *")
	v.SetDefault("maintenance.reconcile_schedule", "@every 1m")
	v.SetDefault("maintenance.ws_schedule", "@every 2m")
	v.SetDefault("maintenance.snapshot_schedule", "@daily")
	v.SetDefault("maintenance.snapshot_retention_days", 30)
	v.SetDefault("maintenance.stale_ws_cutoff", "5m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
