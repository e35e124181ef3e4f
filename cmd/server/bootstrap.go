package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campuskit/qrattend/internal/api"
	"github.com/campuskit/qrattend/internal/app"
	"github.com/campuskit/qrattend/internal/app/maintenance"
	iauth "github.com/campuskit/qrattend/internal/auth"
	"github.com/campuskit/qrattend/internal/database"
	"github.com/campuskit/qrattend/internal/security"
	"github.com/campuskit/qrattend/internal/services"
	"github.com/campuskit/qrattend/pkg/logger"
	"github.com/campuskit/qrattend/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	SessionSvc *iauth.SessionService
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.SessionSvc, err = iauth.NewSessionService(stack.DB, jwtSvc, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}
	if !cfg.Email.SMTP.Enabled {
		log.Info("smtp disabled; verification emails will not be delivered")
	}

	recorder, err := security.NewRecorder(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise attempt recorder: %w", err)
	}
	verificationSvc, err := services.NewVerificationService(stack.DB, mailer,
		services.WithVerificationBaseURL(cfg.Server.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("initialise verification service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.SessionSvc, recorder, verificationSvc,
			maintenance.WithAttemptRetention(cfg.Maintenance.AttemptRetention),
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
			maintenance.WithAttemptSchedule(cfg.Maintenance.AttemptSchedule),
			maintenance.WithTokenSchedule(cfg.Maintenance.TokenSchedule))
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, stack.SessionSvc, mailer)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
