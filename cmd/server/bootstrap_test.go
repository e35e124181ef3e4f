package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/qrattend/internal/app"
)

func testBootstrapConfig(t *testing.T) *app.Config {
	t.Helper()
	cfg := &app.Config{}
	cfg.Server.Port = 0
	cfg.Server.BaseURL = "http://localhost:8000"
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	cfg.Auth.JWT.Secret = "bootstrap-test-secret"
	cfg.QR.StorageDir = t.TempDir()
	cfg.Maintenance.Enabled = true
	cfg.Monitoring.Health.Enabled = true
	return cfg
}

func TestBootstrapRuntime(t *testing.T) {
	cfg := testBootstrapConfig(t)
	log := zap.NewNop()

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	require.NotNil(t, stack.DB)
	require.NotNil(t, stack.SessionSvc)
	require.NotNil(t, stack.Cleaner)
	require.NotNil(t, stack.Router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	stack.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "PostgreSQL"
	cfg.Database.Postgres.Host = " db.example.edu "
	cfg.Database.Postgres.Port = 5433
	cfg.Database.Postgres.Database = "qrattend"
	cfg.Database.Postgres.Username = "svc"
	cfg.Database.Postgres.Password = "pw"

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.example.edu", dbCfg.Host)
	require.Equal(t, 5433, dbCfg.Port)
	require.Equal(t, "qrattend", dbCfg.Name)
	require.Equal(t, "svc", dbCfg.User)
	require.Equal(t, "pw", dbCfg.Password)

	empty := &app.Config{}
	require.Equal(t, "sqlite", convertDatabaseConfig(empty).Driver)
}
