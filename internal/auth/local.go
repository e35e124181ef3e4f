package auth

import (
	goerrors "errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/campuskit/qrattend/internal/models"
	"github.com/campuskit/qrattend/pkg/crypto"
	"github.com/campuskit/qrattend/pkg/errors"
	"github.com/campuskit/qrattend/pkg/metrics"
)

const (
	// DefaultLockoutThreshold is the number of consecutive failures before an account locks.
	DefaultLockoutThreshold = 5
	// DefaultLockoutDuration is how long a locked account stays locked.
	DefaultLockoutDuration = 15 * time.Minute
)

// LocalConfig tunes the credential provider.
type LocalConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// LoginInput carries the credentials and client context for an authentication attempt.
type LoginInput struct {
	Username  string
	Password  string
	IPAddress string
}

// LocalProvider authenticates lecturers against stored bcrypt hashes and
// enforces the per-account lockout state machine.
type LocalProvider struct {
	db        *gorm.DB
	threshold int
	duration  time.Duration
	now       func() time.Time
}

// NewLocalProvider constructs the credential provider.
func NewLocalProvider(db *gorm.DB, cfg LocalConfig) (*LocalProvider, error) {
	if db == nil {
		return nil, goerrors.New("local provider: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LocalProvider{
		db:        db,
		threshold: threshold,
		duration:  duration,
		now:       clock,
	}, nil
}

// Authenticate verifies the supplied credentials.
//
// A locked account rejects every attempt until the lock elapses, correct
// password or not. The lock is cleared lazily on the first attempt after
// expiry, and a successful login resets the failure counter.
func (p *LocalProvider) Authenticate(input LoginInput) (*models.Lecturer, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, errors.ErrInvalidCredentials
	}

	var lecturer models.Lecturer
	err := p.db.Where("username = ?", username).Take(&lecturer).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, errors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("local provider: find lecturer: %w", err))
	}

	now := p.now()

	if lecturer.LockedUntil != nil {
		if now.Before(*lecturer.LockedUntil) {
			metrics.AuthAttempts.WithLabelValues("locked").Inc()
			remaining := lecturer.LockedUntil.Sub(now).Round(time.Second)
			return nil, errors.ErrAccountLocked.WithMessage(
				fmt.Sprintf("Account locked, try again in %s", remaining))
		}

		// Lock elapsed, clear state before evaluating the credentials.
		if err := p.db.Model(&lecturer).Updates(map[string]any{
			"failed_attempts": 0,
			"locked_until":    nil,
		}).Error; err != nil {
			return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("local provider: clear lock: %w", err))
		}
		lecturer.FailedAttempts = 0
		lecturer.LockedUntil = nil
	}

	if !lecturer.IsActive {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, errors.ErrForbidden.WithMessage("Account is disabled")
	}

	if !crypto.VerifyPassword(lecturer.Password, input.Password) {
		if recordErr := p.recordFailure(&lecturer, now); recordErr != nil {
			return nil, errors.ErrInternalServer.WithInternal(recordErr)
		}
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, errors.ErrInvalidCredentials
	}

	if !lecturer.EmailVerified {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, errors.ErrEmailNotVerified
	}

	updates := map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
	}
	if ip := strings.TrimSpace(input.IPAddress); ip != "" {
		updates["last_login_ip"] = ip
	}

	if err := p.db.Model(&lecturer).Updates(updates).Error; err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("local provider: record login: %w", err))
	}

	lecturer.FailedAttempts = 0
	lecturer.LockedUntil = nil
	lecturer.LastLoginAt = &now
	if ip := strings.TrimSpace(input.IPAddress); ip != "" {
		lecturer.LastLoginIP = ip
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &lecturer, nil
}

func (p *LocalProvider) recordFailure(lecturer *models.Lecturer, now time.Time) error {
	attempts := lecturer.FailedAttempts + 1
	updates := map[string]any{
		"failed_attempts": attempts,
	}

	if attempts >= p.threshold {
		lockedUntil := now.Add(p.duration)
		updates["locked_until"] = lockedUntil
		lecturer.LockedUntil = &lockedUntil
		metrics.AccountLockouts.Inc()
	}

	if err := p.db.Model(lecturer).Updates(updates).Error; err != nil {
		return fmt.Errorf("local provider: record failure: %w", err)
	}

	lecturer.FailedAttempts = attempts
	return nil
}

// ChangePassword verifies the current password before storing the new hash.
func (p *LocalProvider) ChangePassword(lecturerID, currentPassword, newPassword string) error {
	var lecturer models.Lecturer
	err := p.db.Where("id = ?", lecturerID).Take(&lecturer).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.ErrNotFound.WithMessage("Lecturer not found")
	}
	if err != nil {
		return errors.ErrInternalServer.WithInternal(fmt.Errorf("local provider: find lecturer: %w", err))
	}

	if !crypto.VerifyPassword(lecturer.Password, currentPassword) {
		return errors.ErrInvalidCredentials.WithMessage("Current password is incorrect")
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return errors.ErrInternalServer.WithInternal(fmt.Errorf("local provider: hash password: %w", err))
	}

	if err := p.db.Model(&lecturer).Update("password", hash).Error; err != nil {
		return errors.ErrInternalServer.WithInternal(fmt.Errorf("local provider: update password: %w", err))
	}

	return nil
}
