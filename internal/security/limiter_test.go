package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campuskit/qrattend/internal/database/testutil"
	"github.com/campuskit/qrattend/internal/models"
)

func seedAttempt(t *testing.T, db *gorm.DB, scope, ip, username string, successful bool, at time.Time) {
	t.Helper()

	row := models.LoginAttempt{
		Scope:      scope,
		IPAddress:  ip,
		Successful: successful,
		CreatedAt:  at,
	}
	if username != "" {
		row.Username = &username
	}
	require.NoError(t, db.Create(&row).Error)
}

func TestCheckBlocksRecentFailures(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	limiter, err := NewLimiter(db, WithLimiterClock(func() time.Time { return now }))
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		seedAttempt(t, db, models.AttemptScopeLogin, "203.0.113.9", "ada", false,
			now.Add(-time.Duration(i)*time.Minute))
	}

	decision := limiter.Check(context.Background(), CheckInput{
		Scope:     models.AttemptScopeLogin,
		IPAddress: "203.0.113.9",
		Username:  "ada",
	})
	require.True(t, decision.Blocked)
	require.Equal(t, 5, decision.Attempts)

	// The oldest failure is 5 minutes old, so the block lifts in 10 minutes.
	require.Equal(t, 10*time.Minute, decision.RetryAfter)
}

func TestCheckIgnoresFailuresOutsideWindow(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	limiter, err := NewLimiter(db, WithLimiterClock(func() time.Time { return now }))
	require.NoError(t, err)

	for i := 16; i <= 20; i++ {
		seedAttempt(t, db, models.AttemptScopeLogin, "203.0.113.9", "ada", false,
			now.Add(-time.Duration(i)*time.Minute))
	}

	decision := limiter.Check(context.Background(), CheckInput{
		Scope:     models.AttemptScopeLogin,
		IPAddress: "203.0.113.9",
		Username:  "ada",
	})
	require.False(t, decision.Blocked)
	require.Equal(t, 0, decision.Attempts)
}

func TestCheckIgnoresSuccessfulAttempts(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	limiter, err := NewLimiter(db, WithLimiterClock(func() time.Time { return now }))
	require.NoError(t, err)

	for i := 1; i <= 10; i++ {
		seedAttempt(t, db, models.AttemptScopeLogin, "203.0.113.9", "ada", true,
			now.Add(-time.Duration(i)*time.Minute))
	}

	decision := limiter.Check(context.Background(), CheckInput{
		Scope:     models.AttemptScopeLogin,
		IPAddress: "203.0.113.9",
		Username:  "ada",
	})
	require.False(t, decision.Blocked)
}

func TestCheckCountsIPAndUsernameIndependently(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	limiter, err := NewLimiter(db, WithLimiterClock(func() time.Time { return now }))
	require.NoError(t, err)

	// Five failures against the same username from rotating addresses.
	ips := []string{"203.0.113.1", "203.0.113.2", "203.0.113.3", "203.0.113.4", "203.0.113.5"}
	for i, ip := range ips {
		seedAttempt(t, db, models.AttemptScopeLogin, ip, "ada", false,
			now.Add(-time.Duration(i+1)*time.Minute))
	}

	decision := limiter.Check(context.Background(), CheckInput{
		Scope:     models.AttemptScopeLogin,
		IPAddress: "198.51.100.7",
		Username:  "ada",
	})
	require.True(t, decision.Blocked, "rotating IPs must not dodge the username count")

	// A different username from a clean address is unaffected.
	decision = limiter.Check(context.Background(), CheckInput{
		Scope:     models.AttemptScopeLogin,
		IPAddress: "198.51.100.7",
		Username:  "grace",
	})
	require.False(t, decision.Blocked)
}

func TestCheckScopesAreIsolated(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	limiter, err := NewLimiter(db, WithLimiterClock(func() time.Time { return now }))
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		seedAttempt(t, db, models.AttemptScopeLogin, "203.0.113.9", "ada", false,
			now.Add(-time.Duration(i)*time.Minute))
	}

	decision := limiter.Check(context.Background(), CheckInput{
		Scope:     models.AttemptScopeResendVerify,
		IPAddress: "203.0.113.9",
		Username:  "ada",
	})
	require.False(t, decision.Blocked, "failures in one scope must not block another")
}

func TestCheckFailsOpenOnLedgerError(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	limiter, err := NewLimiter(db)
	require.NoError(t, err)

	// Dropping the table makes every count query fail.
	require.NoError(t, db.Migrator().DropTable(&models.LoginAttempt{}))

	decision := limiter.Check(context.Background(), CheckInput{
		Scope:     models.AttemptScopeLogin,
		IPAddress: "203.0.113.9",
		Username:  "ada",
	})
	require.False(t, decision.Blocked)
}

func TestRecorderRecordAndPurge(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	recorder, err := NewRecorder(db, WithRecorderClock(func() time.Time { return now }))
	require.NoError(t, err)

	require.NoError(t, recorder.Record(context.Background(), Attempt{
		Scope:     models.AttemptScopeLogin,
		IPAddress: "203.0.113.9",
		Username:  "ada",
	}))
	require.NoError(t, recorder.Record(context.Background(), Attempt{
		Scope:      models.AttemptScopeLogin,
		IPAddress:  "203.0.113.9",
		Successful: true,
	}))

	require.Error(t, recorder.Record(context.Background(), Attempt{}), "scope is mandatory")

	var count int64
	require.NoError(t, db.Model(&models.LoginAttempt{}).Count(&count).Error)
	require.Equal(t, int64(2), count)

	// Nothing is old enough to purge yet.
	removed, err := recorder.PurgeBefore(context.Background(), now.Add(-DefaultAttemptRetention))
	require.NoError(t, err)
	require.Zero(t, removed)

	removed, err = recorder.PurgeBefore(context.Background(), now.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)
}

func TestCheckCountAllCountsEveryOutcome(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	limiter, err := NewLimiter(db, WithLimiterClock(func() time.Time { return now }))
	require.NoError(t, err)

	// Resend requests succeed from the caller's perspective, so their
	// ledger rows are successful; the budget still has to deplete.
	for i := 1; i <= 5; i++ {
		seedAttempt(t, db, models.AttemptScopeResendVerify, "203.0.113.9", "ada@example.edu", true,
			now.Add(-time.Duration(i)*time.Minute))
	}

	decision := limiter.Check(context.Background(), CheckInput{
		Scope:     models.AttemptScopeResendVerify,
		IPAddress: "203.0.113.9",
		Username:  "ada@example.edu",
		CountAll:  true,
	})
	require.True(t, decision.Blocked)
	require.Equal(t, 5, decision.Attempts)
	require.Equal(t, 10*time.Minute, decision.RetryAfter)

	// Without CountAll the same rows are invisible to the failure count.
	decision = limiter.Check(context.Background(), CheckInput{
		Scope:     models.AttemptScopeResendVerify,
		IPAddress: "203.0.113.9",
		Username:  "ada@example.edu",
	})
	require.False(t, decision.Blocked)
}

func TestCheckFailsOpenWhenWindowPurgedMidCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	limiter, err := NewLimiter(db, WithLimiterClock(func() time.Time { return now }))
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		seedAttempt(t, db, models.AttemptScopeLogin, "203.0.113.9", "ada", false,
			now.Add(-time.Duration(i)*time.Minute))
	}

	// Simulate a purge landing between the count queries and the
	// oldest-row lookup: the first query still sees the rows, the rest
	// of the check finds the window empty.
	purged := false
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("purge_mid_check", func(tx *gorm.DB) {
		if purged {
			return
		}
		purged = true
		require.NoError(t, db.Session(&gorm.Session{NewDB: true}).
			Where("ip_address = ?", "203.0.113.9").
			Delete(&models.LoginAttempt{}).Error)
	}))
	t.Cleanup(func() {
		require.NoError(t, db.Callback().Query().Remove("purge_mid_check"))
	})

	decision := limiter.Check(context.Background(), CheckInput{
		Scope:     models.AttemptScopeLogin,
		IPAddress: "203.0.113.9",
		Username:  "ada",
	})
	require.False(t, decision.Blocked)
	require.Zero(t, decision.RetryAfter)
}
