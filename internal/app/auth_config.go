package app

import (
	"strings"
	"time"

	iauth "github.com/charlesng35/filehub/internal/auth"
	"github.com/charlesng35/filehub/internal/database"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
	defaultIdleTimeout      = 30 * time.Minute
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() iauth.JWTConfig {
	return iauth.JWTConfig{
		Secret:     c.JWT.Secret,
		Issuer:     strings.TrimSpace(c.JWT.Issuer),
		AccessTTL:  c.JWT.AccessTTL,
		RefreshTTL: c.JWT.RefreshTTL,
	}
}

// ManagerConfig converts the session and lockout settings into SessionManager parameters.
func (c *Config) ManagerConfig() iauth.SessionManagerConfig {
	threshold := c.Auth.Local.LockoutThreshold
	if threshold <= 0 {
		threshold = defaultLockoutThreshold
	}
	duration := c.Auth.Local.LockoutDuration
	if duration <= 0 {
		duration = defaultLockoutDuration
	}
	idle := c.Sessions.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}

	return iauth.SessionManagerConfig{
		MaxFailedAttempts: threshold,
		LockoutDuration:   duration,
		IdleTimeout:       idle,
		OverflowStrategy:  strings.ToLower(strings.TrimSpace(c.Sessions.OverflowStrategy)),
	}
}

// StoreConfig converts session settings into SessionStore parameters.
func (c *Config) StoreConfig() iauth.SessionStoreConfig {
	return iauth.SessionStoreConfig{
		AbsoluteTimeout: c.Sessions.AbsoluteTimeout,
	}
}

// LimiterSettings converts role limits into SessionLimiter parameters.
func (c *Config) LimiterSettings() iauth.LimiterConfig {
	return iauth.LimiterConfig{
		RoleLimits: c.Sessions.RoleLimits,
	}
}

// DatabaseSettings flattens the database section into the form the database
// package expects, honouring the per-driver host blocks.
func (c DatabaseConfig) DatabaseSettings() database.Config {
	cfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   c.Path,
		DSN:    c.DSN,
	}

	switch cfg.Driver {
	case "postgres", "postgresql":
		cfg.Host, cfg.Port = c.Postgres.Host, c.Postgres.Port
		cfg.Name, cfg.User, cfg.Password = c.Postgres.Database, c.Postgres.Username, c.Postgres.Password
	case "mysql", "mariadb":
		cfg.Host, cfg.Port = c.MySQL.Host, c.MySQL.Port
		cfg.Name, cfg.User, cfg.Password = c.MySQL.Database, c.MySQL.Username, c.MySQL.Password
	}
	return cfg
}
