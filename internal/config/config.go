package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Session  SessionConfig  `toml:"session"`
	Redis    RedisConfig    `toml:"redis"`
	Auth     AuthConfig     `toml:"auth"`
	Routes   RoutesConfig   `toml:"routes"`
	Logging  LoggingConfig  `toml:"logging"`
	Mail     MailConfig     `toml:"mail"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// Domain is the public host name. Referers from it are logged as paths.
	Domain             string `toml:"domain"`
	ShutdownTimeoutSec int    `toml:"shutdown_timeout_sec"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type SessionConfig struct {
	CookieName string `toml:"cookie_name"`
	TTLDays    int    `toml:"ttl_days"`
	Secure     bool   `toml:"secure"`
	Backend    string `toml:"backend"`
}

type RedisConfig struct {
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type AuthConfig struct {
	TokenSecret       string  `toml:"token_secret"`
	VerifyTokenTTLMin int     `toml:"verify_token_ttl_min"`
	SignInRPS         float64 `toml:"sign_in_rps"`
	SignInBurst       int     `toml:"sign_in_burst"`
}

type RoutesConfig struct {
	Protected []string `toml:"protected"`
	Admin     []string `toml:"admin"`
}

type LoggingConfig struct {
	Dir             string `toml:"dir"`
	BufferSize      int    `toml:"buffer_size"`
	FlushIntervalMs int    `toml:"flush_interval_ms"`
	// SQLite mirrors every request record into the request_logs table.
	SQLite bool   `toml:"sqlite"`
	Level  string `toml:"level"`
}

type MailConfig struct {
	From         string `toml:"from"`
	SMTPAddr     string `toml:"smtp_addr"`
	SMTPUser     string `toml:"smtp_user"`
	SMTPPassword string `toml:"smtp_password"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":8080",
			Domain:             "localhost",
			ShutdownTimeoutSec: 10,
		},
		Database: DatabaseConfig{
			Path: "data/app.db",
		},
		Session: SessionConfig{
			CookieName: "auth_session",
			TTLDays:    30,
			Backend:    BackendSQLite,
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Auth: AuthConfig{
			TokenSecret:       "change-me-in-production",
			VerifyTokenTTLMin: 1440, // 24h
			SignInRPS:         1,
			SignInBurst:       5,
		},
		Routes: RoutesConfig{
			Protected: []string{"/dashboard", "/settings", "/auth/verify/email"},
			Admin:     []string{"/admin"},
		},
		Logging: LoggingConfig{
			Dir:             "logs",
			BufferSize:      10,
			FlushIntervalMs: 5000,
			Level:           "info",
		},
		Mail: MailConfig{
			From: "no-reply@localhost",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Logging.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("logging.buffer_size must be positive, got %d", c.Logging.BufferSize))
	}
	if c.Logging.FlushIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("logging.flush_interval_ms must be positive, got %d", c.Logging.FlushIntervalMs))
	}
	if c.Session.TTLDays <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl_days must be positive, got %d", c.Session.TTLDays))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is empty"))
	}
	switch c.Session.Backend {
	case BackendSQLite, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("session.backend: unknown backend %q", c.Session.Backend))
	}
	if c.Auth.SignInRPS <= 0 || c.Auth.SignInBurst <= 0 {
		errs = append(errs, errors.New("auth.sign_in_rps and auth.sign_in_burst must be positive"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLDays) * 24 * time.Hour
}

func (c *Config) VerifyTokenTTL() time.Duration {
	return time.Duration(c.Auth.VerifyTokenTTLMin) * time.Minute
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Logging.FlushIntervalMs) * time.Millisecond
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}

// SlogLevel parses logging.level ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.Logging.Level))); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return lvl, nil
}
