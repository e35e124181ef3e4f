package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campuskit/qrattend/internal/models"
	"github.com/campuskit/qrattend/internal/qr"
	"github.com/campuskit/qrattend/pkg/crypto"
	"github.com/campuskit/qrattend/pkg/mail"
)

func seedLecturer(t *testing.T, db *gorm.DB, username string, verified bool) *models.Lecturer {
	t.Helper()

	hash, err := crypto.HashPassword("secret password")
	require.NoError(t, err)

	lecturer := &models.Lecturer{
		Username:      username,
		Email:         username + "@example.edu",
		Password:      hash,
		EmailVerified: verified,
		IsActive:      true,
	}
	require.NoError(t, db.Create(lecturer).Error)
	return lecturer
}

// recordingMailer captures messages instead of sending them.
type recordingMailer struct {
	messages []mail.Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func newTestVerificationService(t *testing.T, db *gorm.DB, mailer mail.Mailer, opts ...VerificationOption) *VerificationService {
	t.Helper()

	opts = append([]VerificationOption{
		WithVerificationBaseURL("https://attend.example.edu"),
	}, opts...)

	svc, err := NewVerificationService(db, mailer, opts...)
	require.NoError(t, err)
	return svc
}

func newTestCourseService(t *testing.T, db *gorm.DB, opts ...CourseOption) *CourseService {
	t.Helper()

	encoder, err := qr.NewEncoder(qr.Config{
		BaseURL:    "https://attend.example.edu",
		StorageDir: t.TempDir(),
	})
	require.NoError(t, err)

	svc, err := NewCourseService(db, encoder, opts...)
	require.NoError(t, err)
	return svc
}
