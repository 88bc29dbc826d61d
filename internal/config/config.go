// SPDX-License-Identifier: MIT

// Package config loads service configuration with precedence ENV > file > defaults.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Environment names accepted in DATA_API_ENV. They select which DB_*_DEV,
// DB_*_TEST or DB_*_PROD credential set is used, mirroring the legacy
// deployment scheme.
const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvProduction  = "production"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"` // overrides individual fields when set
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`

	ConnTimeout     time.Duration `yaml:"connTimeout"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// KeycloakConfig holds settings for the Keycloak identity server.
type KeycloakConfig struct {
	ServerURL    string        `yaml:"serverUrl"`
	Realm        string        `yaml:"realm"`
	ClientID     string        `yaml:"clientId"`
	ClientSecret string        `yaml:"clientSecret"`
	KeyTTL       time.Duration `yaml:"keyTtl"`   // realm public key cache TTL
	Timeout      time.Duration `yaml:"timeout"`  // HTTP timeout for realm requests
	Disabled     bool          `yaml:"disabled"` // development only: skip token verification
}

// RedisConfig holds optional Redis cache settings. An empty Addr disables
// Redis and selects the in-memory cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporterType"` // "grpc" or "http"
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Config is the root service configuration.
type Config struct {
	Env           string `yaml:"env"`
	ListenAddr    string `yaml:"listenAddr"`
	MetricsListen string `yaml:"metricsListen"` // empty disables the metrics server
	LogLevel      string `yaml:"logLevel"`

	// DisplayUTCOffset is applied to registerAt/updateAt before rendering.
	// The legacy API rendered timestamps in UTC-3; kept configurable.
	DisplayUTCOffset string `yaml:"displayUtcOffset"`

	AllowedOrigins []string `yaml:"allowedOrigins"`

	// Per-IP request limit for the API router.
	RateLimitRequests int           `yaml:"rateLimitRequests"`
	RateLimitWindow   time.Duration `yaml:"rateLimitWindow"`

	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	Database DatabaseConfig `yaml:"database"`
	Keycloak KeycloakConfig `yaml:"keycloak"`
	Redis    RedisConfig    `yaml:"redis"`
	Tracing  TracingConfig  `yaml:"tracing"`

	Version string `yaml:"-"`
}

// Defaults returns the baseline configuration before file and env overlays.
func Defaults() Config {
	return Config{
		Env:               EnvDevelopment,
		ListenAddr:        ":8080",
		MetricsListen:     ":9090",
		LogLevel:          "info",
		DisplayUTCOffset:  "-03:00",
		AllowedOrigins:    []string{"*"},
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			ConnTimeout:     5 * time.Second,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Keycloak: KeycloakConfig{
			KeyTTL:  10 * time.Minute,
			Timeout: 5 * time.Second,
		},
		Tracing: TracingConfig{
			ExporterType: "grpc",
			SamplingRate: 0.1,
		},
	}
}

// envSuffix maps the environment name to the legacy DB_* variable suffix.
func envSuffix(env string) string {
	switch env {
	case EnvProduction:
		return "PROD"
	case EnvTesting:
		return "TEST"
	default:
		return "DEV"
	}
}

// applyEnv overlays environment variables onto cfg. ENV has the highest
// precedence.
func applyEnv(cfg *Config) {
	cfg.Env = strings.ToLower(ParseString("DATA_API_ENV", cfg.Env))
	cfg.ListenAddr = ParseString("DATA_API_LISTEN", cfg.ListenAddr)
	cfg.MetricsListen = ParseString("DATA_API_METRICS_LISTEN", cfg.MetricsListen)
	cfg.LogLevel = ParseString("DATA_API_LOG_LEVEL", cfg.LogLevel)
	cfg.DisplayUTCOffset = ParseString("DATA_API_DISPLAY_UTC_OFFSET", cfg.DisplayUTCOffset)

	if origins := ParseString("DATA_API_ALLOWED_ORIGINS", ""); origins != "" {
		parts := strings.Split(origins, ",")
		cfg.AllowedOrigins = cfg.AllowedOrigins[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, p)
			}
		}
	}

	cfg.RateLimitRequests = ParseInt("DATA_API_RATE_LIMIT", cfg.RateLimitRequests)
	cfg.RateLimitWindow = ParseDuration("DATA_API_RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	cfg.ReadTimeout = ParseDuration("DATA_API_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = ParseDuration("DATA_API_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ShutdownTimeout = ParseDuration("DATA_API_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	suffix := envSuffix(cfg.Env)
	cfg.Database.DSN = ParseString("DATA_API_DB_DSN", cfg.Database.DSN)
	cfg.Database.Host = ParseString("DB_HOST_"+suffix, cfg.Database.Host)
	cfg.Database.Port = ParseInt("DB_PORT_"+suffix, cfg.Database.Port)
	cfg.Database.User = ParseString("DB_USER_"+suffix, cfg.Database.User)
	cfg.Database.Password = ParseString("DB_PASS_"+suffix, cfg.Database.Password)
	cfg.Database.Name = ParseString("DB_NAME_"+suffix, cfg.Database.Name)
	cfg.Database.ConnTimeout = ParseDuration("DATA_API_DB_CONN_TIMEOUT", cfg.Database.ConnTimeout)
	cfg.Database.MaxOpenConns = ParseInt("DATA_API_DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = ParseInt("DATA_API_DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.Keycloak.ServerURL = ParseString("KC_SERVER_URL", cfg.Keycloak.ServerURL)
	cfg.Keycloak.Realm = ParseString("KC_REALM", cfg.Keycloak.Realm)
	cfg.Keycloak.ClientID = ParseString("KC_BACKEND_CLIENT_ID", cfg.Keycloak.ClientID)
	cfg.Keycloak.ClientSecret = ParseString("KC_BACKEND_CLIENT_SECRET", cfg.Keycloak.ClientSecret)
	cfg.Keycloak.KeyTTL = ParseDuration("DATA_API_KC_KEY_TTL", cfg.Keycloak.KeyTTL)
	cfg.Keycloak.Timeout = ParseDuration("DATA_API_KC_TIMEOUT", cfg.Keycloak.Timeout)
	cfg.Keycloak.Disabled = ParseBool("DATA_API_AUTH_DISABLED", cfg.Keycloak.Disabled)

	cfg.Redis.Addr = ParseString("DATA_API_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = ParseString("DATA_API_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = ParseInt("DATA_API_REDIS_DB", cfg.Redis.DB)

	cfg.Tracing.Enabled = ParseBool("DATA_API_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.ExporterType = ParseString("DATA_API_TRACING_EXPORTER", cfg.Tracing.ExporterType)
	cfg.Tracing.Endpoint = ParseString("DATA_API_TRACING_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.SamplingRate = ParseFloat("DATA_API_TRACING_SAMPLING_RATE", cfg.Tracing.SamplingRate)
	cfg.Tracing.Environment = ParseString("DATA_API_TRACING_ENVIRONMENT", cfg.Tracing.Environment)
	if cfg.Tracing.Environment == "" {
		cfg.Tracing.Environment = cfg.Env
	}
}

// PostgresDSN returns the connection string, preferring an explicit DSN.
func (d DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(d.User), url.QueryEscape(d.Password), d.Host, d.Port, d.Name)
}

// DisplayLocation parses DisplayUTCOffset into a fixed time.Location.
func (c Config) DisplayLocation() (*time.Location, error) {
	t, err := time.Parse("-07:00", c.DisplayUTCOffset)
	if err != nil {
		return nil, fmt.Errorf("invalid display UTC offset %q: %w", c.DisplayUTCOffset, err)
	}
	_, offset := t.Zone()
	return time.FixedZone("display", offset), nil
}
