package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/qrattend/internal/app"
	iauth "github.com/campuskit/qrattend/internal/auth"
	"github.com/campuskit/qrattend/internal/database/testutil"
	"github.com/campuskit/qrattend/internal/models"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	return &app.Config{
		Server: app.ServerConfig{
			Port:    8000,
			BaseURL: "http://localhost:8000",
		},
		QR: app.QRConfig{
			StorageDir: t.TempDir(),
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{})
	require.NoError(t, err)

	router, err := NewRouter(db, jwtSvc, testConfig(t), sessions, nil)
	require.NoError(t, err)
	return router
}

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/auth/me", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/courses", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// The attendance page is public; an unknown course is a 404, not a 401.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/attend/does-not-exist", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "qrattend_"))
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/nope", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterDatabaseBackedRequestLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{})
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Database.Driver = "postgres"
	cfg.RateLimit.HTTP = app.HTTPRateLimitConfig{Enabled: true, MaxRequests: 2, Window: time.Minute}

	router, err := NewRouter(db, jwtSvc, cfg, sessions, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/health", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// Counters live in the cache table, shared by every replica on the
	// same database.
	var entries int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&entries).Error)
	require.NotZero(t, entries)
}
