package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/campuskit/qrattend/internal/app"
	iauth "github.com/campuskit/qrattend/internal/auth"
	"github.com/campuskit/qrattend/internal/cache"
	"github.com/campuskit/qrattend/internal/handlers"
	"github.com/campuskit/qrattend/internal/middleware"
	"github.com/campuskit/qrattend/internal/qr"
	"github.com/campuskit/qrattend/internal/security"
	"github.com/campuskit/qrattend/internal/services"
	"github.com/campuskit/qrattend/pkg/mail"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, sessions *iauth.SessionService, mailer mail.Mailer) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	if cfg.RateLimit.HTTP.Enabled {
		// Single-file sqlite means a single instance; host databases may
		// back several replicas, which then share counters through the
		// cache table.
		var store cache.Store
		switch strings.ToLower(strings.TrimSpace(cfg.Database.Driver)) {
		case "", "sqlite":
			store = cache.NewMemoryStore()
		default:
			store = cache.NewDatabaseStore(db)
		}
		r.Use(middleware.RateLimit(middleware.NewRateStore(store), cfg.RateLimit.HTTP.MaxRequests, cfg.RateLimit.HTTP.Window))
	}

	registerHealthRoutes(r, cfg)

	encoder, err := qr.NewEncoder(cfg.EncoderConfig())
	if err != nil {
		return nil, err
	}

	verification, err := services.NewVerificationService(db, mailer,
		services.WithVerificationBaseURL(cfg.Server.BaseURL))
	if err != nil {
		return nil, err
	}
	lecturers, err := services.NewLecturerService(db, verification)
	if err != nil {
		return nil, err
	}
	courses, err := services.NewCourseService(db, encoder)
	if err != nil {
		return nil, err
	}
	attendance, err := services.NewAttendanceService(db)
	if err != nil {
		return nil, err
	}

	provider, err := iauth.NewLocalProvider(db, cfg.Auth.LocalProviderConfig())
	if err != nil {
		return nil, err
	}
	limiter, err := security.NewLimiter(db,
		security.WithLimiterMaxAttempts(cfg.RateLimit.MaxAttempts),
		security.WithLimiterWindow(cfg.RateLimit.Window))
	if err != nil {
		return nil, err
	}
	recorder, err := security.NewRecorder(db)
	if err != nil {
		return nil, err
	}

	requireAuth := middleware.Auth(jwt)

	authHandler := handlers.NewAuthHandler(lecturers, verification, provider, sessions, limiter, recorder)
	registerAuthRoutes(r, requireAuth, authHandler)

	courseHandler := handlers.NewCourseHandler(courses, attendance)
	registerCourseRoutes(r, requireAuth, courseHandler)

	profileHandler := handlers.NewProfileHandler(lecturers, verification, provider)
	registerProfileRoutes(r, requireAuth, profileHandler)

	attendanceHandler := handlers.NewAttendanceHandler(courses, attendance)
	registerAttendanceRoutes(r, attendanceHandler)

	// Generated QR images are served straight from the storage directory.
	r.Static("/"+encoder.PublicPath(), encoder.StorageDir())

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
