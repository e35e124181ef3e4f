package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campuskit/qrattend/internal/models"
	"github.com/campuskit/qrattend/pkg/logger"
)

const (
	// DefaultMaxAttempts is the failed attempt count at which a source blocks.
	DefaultMaxAttempts = 5
	// DefaultWindow is the sliding window over which failed attempts count.
	DefaultWindow = 15 * time.Minute
)

// CheckInput identifies the source of an attempt and the limits to apply.
// Zero MaxAttempts or Window fall back to the defaults.
type CheckInput struct {
	Scope       string
	IPAddress   string
	Username    string
	MaxAttempts int
	Window      time.Duration

	// CountAll counts every ledger row instead of only failures. Scopes
	// where each completed request consumes budget (resending a
	// verification email, registering) set this; the login scope keeps
	// counting failures only.
	CountAll bool
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Blocked    bool
	Attempts   int
	RetryAfter time.Duration
}

// Limiter derives blocking decisions from the attempt ledger. The IP address
// and username are counted independently and the larger count decides, so an
// attacker cannot dodge the limit by rotating one of the two.
type Limiter struct {
	db          *gorm.DB
	log         *zap.Logger
	now         func() time.Time
	maxAttempts int
	window      time.Duration
}

// LimiterOption customises a Limiter.
type LimiterOption func(*Limiter)

// WithLimiterClock overrides the clock, primarily for tests.
func WithLimiterClock(clock func() time.Time) LimiterOption {
	return func(l *Limiter) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithLimiterMaxAttempts sets the fallback attempt limit used when a check
// does not specify its own.
func WithLimiterMaxAttempts(max int) LimiterOption {
	return func(l *Limiter) {
		if max > 0 {
			l.maxAttempts = max
		}
	}
}

// WithLimiterWindow sets the fallback sliding window used when a check does
// not specify its own.
func WithLimiterWindow(window time.Duration) LimiterOption {
	return func(l *Limiter) {
		if window > 0 {
			l.window = window
		}
	}
}

// NewLimiter constructs a ledger-backed rate limiter.
func NewLimiter(db *gorm.DB, opts ...LimiterOption) (*Limiter, error) {
	if db == nil {
		return nil, errors.New("rate limiter: db is required")
	}

	l := &Limiter{
		db:          db,
		log:         logger.WithModule("security.limiter"),
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
		window:      DefaultWindow,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check reports whether the source identified by the input is currently
// blocked. Ledger read errors fail open: an unavailable ledger must not turn
// into a denial of service for every legitimate login.
func (l *Limiter) Check(ctx context.Context, input CheckInput) Decision {
	if ctx == nil {
		ctx = context.Background()
	}

	scope := strings.TrimSpace(input.Scope)
	if scope == "" {
		scope = models.AttemptScopeLogin
	}

	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = l.maxAttempts
	}

	window := input.Window
	if window <= 0 {
		window = l.window
	}

	now := l.now()
	since := now.Add(-window)

	ip := strings.TrimSpace(input.IPAddress)
	username := strings.TrimSpace(input.Username)

	var ipCount, userCount int64

	if ip != "" {
		query := l.db.WithContext(ctx).
			Model(&models.LoginAttempt{}).
			Where("scope = ? AND ip_address = ? AND created_at >= ?", scope, ip, since)
		if !input.CountAll {
			query = query.Where("successful = ?", false)
		}
		if err := query.Count(&ipCount).Error; err != nil {
			l.log.Warn("attempt ledger unavailable, failing open",
				zap.String("scope", scope),
				zap.Error(err))
			return Decision{}
		}
	}

	if username != "" {
		query := l.db.WithContext(ctx).
			Model(&models.LoginAttempt{}).
			Where("scope = ? AND username = ? AND created_at >= ?", scope, username, since)
		if !input.CountAll {
			query = query.Where("successful = ?", false)
		}
		if err := query.Count(&userCount).Error; err != nil {
			l.log.Warn("attempt ledger unavailable, failing open",
				zap.String("scope", scope),
				zap.Error(err))
			return Decision{}
		}
	}

	attempts := int(ipCount)
	if int(userCount) > attempts {
		attempts = int(userCount)
	}

	if attempts < maxAttempts {
		return Decision{Attempts: attempts}
	}

	retryAfter, err := l.retryAfter(ctx, input, scope, ip, username, since, window, now)
	if errors.Is(err, errNoQualifyingAttempt) {
		// The rows counted above were purged before we could read the
		// oldest one. The window is effectively empty now, so let the
		// request through rather than block on stale evidence.
		return Decision{Attempts: attempts}
	}
	if err != nil {
		l.log.Warn("could not derive retry-after",
			zap.String("scope", scope),
			zap.Error(err))
		retryAfter = window
	}

	return Decision{
		Blocked:    true,
		Attempts:   attempts,
		RetryAfter: retryAfter,
	}
}

// errNoQualifyingAttempt reports that no ledger row remains inside the window.
var errNoQualifyingAttempt = errors.New("no qualifying attempt in window")

// retryAfter finds the oldest counted attempt still inside the window; the
// block lifts once that attempt ages out.
func (l *Limiter) retryAfter(ctx context.Context, input CheckInput, scope, ip, username string, since time.Time, window time.Duration, now time.Time) (time.Duration, error) {
	query := l.db.WithContext(ctx).
		Model(&models.LoginAttempt{}).
		Where("scope = ? AND created_at >= ?", scope, since)
	if !input.CountAll {
		query = query.Where("successful = ?", false)
	}

	switch {
	case ip != "" && username != "":
		query = query.Where("ip_address = ? OR username = ?", ip, username)
	case ip != "":
		query = query.Where("ip_address = ?", ip)
	case username != "":
		query = query.Where("username = ?", username)
	}

	var oldest models.LoginAttempt
	err := query.Order("created_at ASC").Take(&oldest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, errNoQualifyingAttempt
	}
	if err != nil {
		return 0, fmt.Errorf("find oldest attempt: %w", err)
	}

	remaining := oldest.CreatedAt.Add(window).Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
