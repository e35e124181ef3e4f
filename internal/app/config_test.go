package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campuskit/qrattend/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "https://attend.example.edu", cfg.Server.BaseURL)
	require.Equal(t, "debug", cfg.Server.LogLevel)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.edu", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 1440*time.Hour, cfg.Auth.Session.RefreshTTL)
	require.Equal(t, 64, cfg.Auth.Session.RefreshLength)
	require.Equal(t, 7, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, 20*time.Minute, cfg.Auth.Local.LockoutDuration)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.edu", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.Equal(t, "/srv/qrattend/qrcodes", cfg.QR.StorageDir)
	require.Equal(t, "media/qr", cfg.QR.PublicPath)
	require.Equal(t, 512, cfg.QR.ImageSize)

	require.Equal(t, 8, cfg.RateLimit.MaxAttempts)
	require.Equal(t, 30*time.Minute, cfg.RateLimit.Window)
	require.False(t, cfg.RateLimit.HTTP.Enabled)

	require.False(t, cfg.Maintenance.Enabled)
	require.Equal(t, 240*time.Hour, cfg.Maintenance.AttemptRetention)
	require.Equal(t, "@every 6h", cfg.Maintenance.AttemptSchedule)

	// Values absent from the file fall back to defaults.
	require.Equal(t, "@hourly", cfg.Maintenance.SessionSchedule)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 720*time.Hour, cfg.Auth.Session.RefreshTTL)
	require.Equal(t, 5, cfg.RateLimit.MaxAttempts)
	require.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	require.Equal(t, 256, cfg.QR.ImageSize)
	require.Equal(t, 168*time.Hour, cfg.Maintenance.AttemptRetention)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := Config{
		Auth: AuthConfig{
			JWT: JWTSettings{
				Secret: "secret",
				Issuer: "issuer",
				TTL:    30 * time.Minute,
			},
			Session: SessionSettings{
				RefreshTTL:    10 * time.Hour,
				RefreshLength: 32,
			},
			Local: LocalAuthSettings{
				LockoutThreshold: 4,
				LockoutDuration:  10 * time.Minute,
			},
		},
	}

	jwtCfg := cfg.Auth.JWTServiceConfig()
	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, jwtCfg)

	sessionCfg := cfg.Auth.SessionServiceConfig()
	require.Equal(t, auth.SessionConfig{
		RefreshTokenTTL: 10 * time.Hour,
		RefreshLength:   32,
	}, sessionCfg)

	localCfg := cfg.Auth.LocalProviderConfig()
	require.Equal(t, auth.LocalConfig{
		LockoutThreshold: 4,
		LockoutDuration:  10 * time.Minute,
	}, localCfg)
}

func TestAuthConfigAdaptersFallback(t *testing.T) {
	var cfg AuthConfig

	jwtCfg := cfg.JWTServiceConfig()
	require.Equal(t, auth.DefaultAccessTokenTTL, jwtCfg.AccessTokenTTL)

	sessionCfg := cfg.SessionServiceConfig()
	require.Equal(t, auth.DefaultRefreshTokenTTL, sessionCfg.RefreshTokenTTL)
	require.Equal(t, 48, sessionCfg.RefreshLength)

	localCfg := cfg.LocalProviderConfig()
	require.Equal(t, auth.DefaultLockoutThreshold, localCfg.LockoutThreshold)
	require.Equal(t, auth.DefaultLockoutDuration, localCfg.LockoutDuration)
}

func TestEmailConfigAdapter(t *testing.T) {
	cfg := EmailConfig{
		SMTP: SMTPConfig{
			Enabled:  true,
			Host:     "smtp.example.edu",
			Port:     2525,
			Username: "user",
			Password: "pass",
			From:     "no-reply@example.edu",
			UseTLS:   true,
			Timeout:  10 * time.Second,
		},
	}

	settings := cfg.SMTPSettings()
	require.True(t, settings.Enabled)
	require.Equal(t, "smtp.example.edu", settings.Host)
	require.Equal(t, 2525, settings.Port)
	require.Equal(t, "user", settings.Username)
	require.Equal(t, "no-reply@example.edu", settings.From)
	require.True(t, settings.UseTLS)
	require.Equal(t, 10*time.Second, settings.Timeout)
}
