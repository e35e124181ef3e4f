package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/campuskit/qrattend/internal/models"
)

// DefaultAttemptRetention is how long ledger rows are kept before maintenance
// purges them.
const DefaultAttemptRetention = 7 * 24 * time.Hour

// Attempt describes a single authentication or verification attempt to record.
type Attempt struct {
	Scope      string
	IPAddress  string
	Username   string
	Successful bool
}

// Recorder appends attempts to the ledger. Rows are never updated once
// written; blocking decisions are derived by counting them.
type Recorder struct {
	db  *gorm.DB
	now func() time.Time
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderClock overrides the clock, primarily for tests.
func WithRecorderClock(clock func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewRecorder constructs a ledger recorder.
func NewRecorder(db *gorm.DB, opts ...RecorderOption) (*Recorder, error) {
	if db == nil {
		return nil, errors.New("attempt recorder: db is required")
	}

	r := &Recorder{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record appends one attempt to the ledger.
func (r *Recorder) Record(ctx context.Context, attempt Attempt) error {
	if ctx == nil {
		ctx = context.Background()
	}

	scope := strings.TrimSpace(attempt.Scope)
	if scope == "" {
		return errors.New("attempt recorder: scope is required")
	}

	row := models.LoginAttempt{
		Scope:      scope,
		IPAddress:  strings.TrimSpace(attempt.IPAddress),
		Successful: attempt.Successful,
		CreatedAt:  r.now(),
	}

	if username := strings.TrimSpace(attempt.Username); username != "" {
		row.Username = &username
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("attempt recorder: record attempt: %w", err)
	}

	return nil
}

// PurgeBefore removes ledger rows created before the cutoff and returns how
// many were deleted.
func (r *Recorder) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.LoginAttempt{})
	if result.Error != nil {
		return 0, fmt.Errorf("attempt recorder: purge: %w", result.Error)
	}

	return result.RowsAffected, nil
}
