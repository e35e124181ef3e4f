package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/campuskit/qrattend/internal/auth"
	"github.com/campuskit/qrattend/internal/security"
	"github.com/campuskit/qrattend/internal/services"
	"github.com/campuskit/qrattend/pkg/logger"
)

const (
	defaultSessionSpec = "@hourly"
	defaultAttemptSpec = "@daily"
	defaultTokenSpec   = "@hourly"
)

// Cleaner coordinates background maintenance tasks such as purging expired sessions,
// pruning old login attempt ledger rows, and removing expired verification challenges.
type Cleaner struct {
	sessions  *iauth.SessionService
	attempts  *security.Recorder
	tokens    *services.VerificationService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	enabled   bool
	retention time.Duration

	sessionSchedule string
	attemptSchedule string
	tokenSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention cutoff calculations.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAttemptRetention adjusts how long login attempt rows are retained.
func WithAttemptRetention(retention time.Duration) Option {
	return func(cleaner *Cleaner) {
		if retention > 0 {
			cleaner.retention = retention
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithAttemptSchedule overrides the cron specification for ledger retention enforcement.
func WithAttemptSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.attemptSchedule = spec
		}
	}
}

// WithTokenSchedule overrides the cron specification for verification challenge cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(sessions *iauth.SessionService, attempts *security.Recorder, tokens *services.VerificationService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:        sessions,
		attempts:        attempts,
		tokens:          tokens,
		now:             time.Now,
		retention:       security.DefaultAttemptRetention,
		sessionSchedule: defaultSessionSpec,
		attemptSchedule: defaultAttemptSpec,
		tokenSchedule:   defaultTokenSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.sessions != nil || cleaner.attempts != nil || cleaner.tokens != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			ctx := context.Background()
			if _, err := c.sessions.CleanupExpired(ctx); err != nil {
				c.log.Warn("session cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.attempts != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.attemptSchedule, func() {
			ctx := context.Background()
			if _, err := c.attempts.PurgeBefore(ctx, c.now().Add(-c.retention)); err != nil {
				c.log.Warn("attempt ledger cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.tokens != nil {
		if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
			ctx := context.Background()
			if _, err := c.tokens.PurgeExpired(ctx); err != nil {
				c.log.Warn("verification challenge cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.attempts != nil && c.retention > 0 {
		if _, err := c.attempts.PurgeBefore(ctx, c.now().Add(-c.retention)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.tokens != nil {
		if _, err := c.tokens.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
