package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campuskit/qrattend/internal/database/testutil"
	"github.com/campuskit/qrattend/internal/models"
	apperrors "github.com/campuskit/qrattend/pkg/errors"
)

func TestIssueRegistrationChallenge(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	lecturer := seedLecturer(t, db, "ada", false)

	mailer := &recordingMailer{}
	svc := newTestVerificationService(t, db, mailer)

	result, err := svc.Issue(context.Background(), IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     models.VerifyPurposeRegistration,
		TargetEmail: lecturer.Email,
	})
	require.NoError(t, err)
	require.False(t, result.DeliveryFailed)
	require.GreaterOrEqual(t, len(result.Token), 32)
	require.Len(t, result.Code, 6)
	require.Contains(t, result.Link, "https://attend.example.edu/verify?token=")

	require.Len(t, mailer.messages, 1)
	require.Contains(t, mailer.messages[0].Body, result.Link)
	require.Contains(t, mailer.messages[0].Body, result.Code)

	// Only the token hash is stored.
	var challenge models.VerificationChallenge
	require.NoError(t, db.Where("lecturer_id = ?", lecturer.ID).Take(&challenge).Error)
	require.NotEqual(t, result.Token, challenge.TokenHash)
	require.Equal(t, result.Code, challenge.Code)
}

func TestIssueReplacesExistingChallenge(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	lecturer := seedLecturer(t, db, "ada", false)

	svc := newTestVerificationService(t, db, &recordingMailer{})

	first, err := svc.Issue(context.Background(), IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     models.VerifyPurposeRegistration,
		TargetEmail: lecturer.Email,
	})
	require.NoError(t, err)

	_, err = svc.Issue(context.Background(), IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     models.VerifyPurposeRegistration,
		TargetEmail: lecturer.Email,
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.VerificationChallenge{}).
		Where("lecturer_id = ?", lecturer.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)

	// The replaced token no longer redeems.
	_, err = svc.Redeem(context.Background(), RedeemInput{
		Purpose: models.VerifyPurposeRegistration,
		Token:   first.Token,
	})
	require.ErrorIs(t, err, apperrors.ErrVerificationNotFound)
}

func TestIssueRejectsUnknownPurpose(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	lecturer := seedLecturer(t, db, "ada", false)

	svc := newTestVerificationService(t, db, &recordingMailer{})

	_, err := svc.Issue(context.Background(), IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     "password_reset",
		TargetEmail: lecturer.Email,
	})
	require.Error(t, err)
}

func TestIssueReportsDeliveryFailure(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	lecturer := seedLecturer(t, db, "ada", false)

	mailer := &recordingMailer{err: context.DeadlineExceeded}
	svc := newTestVerificationService(t, db, mailer)

	result, err := svc.Issue(context.Background(), IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     models.VerifyPurposeRegistration,
		TargetEmail: lecturer.Email,
	})
	require.NoError(t, err)
	require.True(t, result.DeliveryFailed)

	// The challenge survives the failed send and stays redeemable, but the
	// account is never verified by delivery failure alone.
	var stored models.Lecturer
	require.NoError(t, db.Where("id = ?", lecturer.ID).Take(&stored).Error)
	require.False(t, stored.EmailVerified)

	verified, err := svc.Redeem(context.Background(), RedeemInput{
		Purpose: models.VerifyPurposeRegistration,
		Token:   result.Token,
	})
	require.NoError(t, err)
	require.True(t, verified.EmailVerified)
}

func TestRedeemByToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	lecturer := seedLecturer(t, db, "ada", false)

	svc := newTestVerificationService(t, db, &recordingMailer{})

	result, err := svc.Issue(context.Background(), IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     models.VerifyPurposeRegistration,
		TargetEmail: lecturer.Email,
	})
	require.NoError(t, err)

	verified, err := svc.Redeem(context.Background(), RedeemInput{
		Purpose: models.VerifyPurposeRegistration,
		Token:   result.Token,
	})
	require.NoError(t, err)
	require.True(t, verified.EmailVerified)

	// A challenge redeems at most once.
	_, err = svc.Redeem(context.Background(), RedeemInput{
		Purpose: models.VerifyPurposeRegistration,
		Token:   result.Token,
	})
	require.ErrorIs(t, err, apperrors.ErrVerificationNotFound)
}

func TestRedeemByCode(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	lecturer := seedLecturer(t, db, "ada", false)

	svc := newTestVerificationService(t, db, &recordingMailer{})

	result, err := svc.Issue(context.Background(), IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     models.VerifyPurposeRegistration,
		TargetEmail: lecturer.Email,
	})
	require.NoError(t, err)

	verified, err := svc.Redeem(context.Background(), RedeemInput{
		Purpose: models.VerifyPurposeRegistration,
		Code:    result.Code,
		Email:   lecturer.Email,
	})
	require.NoError(t, err)
	require.True(t, verified.EmailVerified)
}

func TestRedeemExpiredChallenge(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	lecturer := seedLecturer(t, db, "ada", false)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := newTestVerificationService(t, db, &recordingMailer{},
		WithVerificationClock(func() time.Time { return now }))

	result, err := svc.Issue(context.Background(), IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     models.VerifyPurposeRegistration,
		TargetEmail: lecturer.Email,
	})
	require.NoError(t, err)

	now = now.Add(RegistrationChallengeTTL + time.Minute)

	_, err = svc.Redeem(context.Background(), RedeemInput{
		Purpose: models.VerifyPurposeRegistration,
		Token:   result.Token,
	})
	require.ErrorIs(t, err, apperrors.ErrVerificationExpired)

	// Presenting a stale challenge clears it immediately.
	var count int64
	require.NoError(t, db.Model(&models.VerificationChallenge{}).Count(&count).Error)
	require.Zero(t, count)

	// Presenting the same token again is now unknown, not expired.
	_, err = svc.Redeem(context.Background(), RedeemInput{
		Purpose: models.VerifyPurposeRegistration,
		Token:   result.Token,
	})
	require.ErrorIs(t, err, apperrors.ErrVerificationNotFound)

	// Expired is distinct from unknown.
	_, err = svc.Redeem(context.Background(), RedeemInput{
		Purpose: models.VerifyPurposeRegistration,
		Token:   "definitely-not-issued",
	})
	require.ErrorIs(t, err, apperrors.ErrVerificationNotFound)
}

func TestRedeemAlreadyVerifiedAccount(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	lecturer := seedLecturer(t, db, "ada", false)

	svc := newTestVerificationService(t, db, &recordingMailer{})

	result, err := svc.Issue(context.Background(), IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     models.VerifyPurposeRegistration,
		TargetEmail: lecturer.Email,
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Lecturer{}).
		Where("id = ?", lecturer.ID).
		Update("email_verified", true).Error)

	_, err = svc.Redeem(context.Background(), RedeemInput{
		Purpose: models.VerifyPurposeRegistration,
		Token:   result.Token,
	})
	require.ErrorIs(t, err, apperrors.ErrAlreadyVerified)
}

func TestRedeemWrongPurpose(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	lecturer := seedLecturer(t, db, "ada", false)

	svc := newTestVerificationService(t, db, &recordingMailer{})

	result, err := svc.Issue(context.Background(), IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     models.VerifyPurposeRegistration,
		TargetEmail: lecturer.Email,
	})
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), RedeemInput{
		Purpose: models.VerifyPurposeEmailChange,
		Token:   result.Token,
	})
	require.ErrorIs(t, err, apperrors.ErrVerificationNotFound)
}

func TestRedeemEmailChange(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	lecturer := seedLecturer(t, db, "ada", true)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := newTestVerificationService(t, db, &recordingMailer{},
		WithVerificationClock(func() time.Time { return now }))

	result, err := svc.Issue(context.Background(), IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     models.VerifyPurposeEmailChange,
		TargetEmail: "new.address@example.edu",
	})
	require.NoError(t, err)
	require.Equal(t, now.Add(EmailChangeChallengeTTL), result.ExpiresAt)

	updated, err := svc.Redeem(context.Background(), RedeemInput{
		Purpose: models.VerifyPurposeEmailChange,
		Code:    result.Code,
		Email:   "new.address@example.edu",
	})
	require.NoError(t, err)
	require.Equal(t, "new.address@example.edu", updated.Email)

	var stored models.Lecturer
	require.NoError(t, db.Where("id = ?", lecturer.ID).Take(&stored).Error)
	require.Equal(t, "new.address@example.edu", stored.Email)
}

func TestPurgeExpiredChallenges(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	ada := seedLecturer(t, db, "ada", false)
	grace := seedLecturer(t, db, "grace", false)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := newTestVerificationService(t, db, &recordingMailer{},
		WithVerificationClock(func() time.Time { return now }))

	_, err := svc.Issue(context.Background(), IssueInput{
		LecturerID:  ada.ID,
		Purpose:     models.VerifyPurposeRegistration,
		TargetEmail: ada.Email,
	})
	require.NoError(t, err)

	// Grace's email change challenge expires first.
	_, err = svc.Issue(context.Background(), IssueInput{
		LecturerID:  grace.ID,
		Purpose:     models.VerifyPurposeEmailChange,
		TargetEmail: "grace.new@example.edu",
	})
	require.NoError(t, err)

	now = now.Add(time.Hour)

	removed, err := svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	var remaining []models.VerificationChallenge
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, ada.ID, remaining[0].LecturerID)
}
