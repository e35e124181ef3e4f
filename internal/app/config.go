package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the QR attendance backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Email       EmailConfig       `mapstructure:"email"`
	QR          QRConfig          `mapstructure:"qr"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	BaseURL  string `mapstructure:"base_url"`
	LogLevel string `mapstructure:"log_level"`
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

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT     JWTSettings       `mapstructure:"jwt"`
	Session SessionSettings   `mapstructure:"session"`
	Local   LocalAuthSettings `mapstructure:"local"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// SessionSettings configures refresh tokens and session lifetimes.
type SessionSettings struct {
	RefreshTTL    time.Duration `mapstructure:"refresh_token_ttl"`
	RefreshLength int           `mapstructure:"refresh_token_length"`
}

// LocalAuthSettings defines controls for the credential provider.
type LocalAuthSettings struct {
	LockoutThreshold int           `mapstructure:"lockout_threshold"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// QRConfig controls generated QR code storage and rendering.
type QRConfig struct {
	StorageDir string `mapstructure:"storage_dir"`
	PublicPath string `mapstructure:"public_path"`
	ImageSize  int    `mapstructure:"image_size"`
}

// RateLimitConfig controls the ledger-backed attempt limits.
type RateLimitConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`

	// HTTP applies a coarse per-IP request limit in front of every route.
	HTTP HTTPRateLimitConfig `mapstructure:"http"`
}

// HTTPRateLimitConfig configures the request-level limiter.
type HTTPRateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// MaintenanceConfig controls background cleanup scheduling.
type MaintenanceConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	AttemptRetention time.Duration `mapstructure:"attempt_retention"`
	SessionSchedule  string        `mapstructure:"session_schedule"`
	AttemptSchedule  string        `mapstructure:"attempt_schedule"`
	TokenSchedule    string        `mapstructure:"token_schedule"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
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

	v.SetEnvPrefix("QRATTEND")
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

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/qrattend.sqlite")

	v.SetDefault("auth.jwt.issuer", "qrattend")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.session.refresh_token_ttl", "720h") // 30 days
	v.SetDefault("auth.session.refresh_token_length", 48)
	v.SetDefault("auth.local.lockout_threshold", 5)
	v.SetDefault("auth.local.lockout_duration", "15m")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("qr.storage_dir", "./data/qrcodes")
	v.SetDefault("qr.public_path", "media/qrcodes")
	v.SetDefault("qr.image_size", 256)

	v.SetDefault("rate_limit.max_attempts", 5)
	v.SetDefault("rate_limit.window", "15m")
	v.SetDefault("rate_limit.http.enabled", true)
	v.SetDefault("rate_limit.http.max_requests", 100)
	v.SetDefault("rate_limit.http.window", "1m")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.attempt_retention", "168h") // 7 days
	v.SetDefault("maintenance.session_schedule", "@hourly")
	v.SetDefault("maintenance.attempt_schedule", "@daily")
	v.SetDefault("maintenance.token_schedule", "@hourly")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
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
