package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campuskit/qrattend/internal/database/testutil"
	"github.com/campuskit/qrattend/internal/models"
	apperrors "github.com/campuskit/qrattend/pkg/errors"
)

func seedCourse(t *testing.T, db *gorm.DB, lecturerID string) *models.Course {
	t.Helper()

	course := &models.Course{
		LecturerID: lecturerID,
		Title:      "Distributed Systems",
		Day:        "Monday",
		StartTime:  "09:00",
		EndTime:    "11:00",
	}
	require.NoError(t, db.Create(course).Error)
	return course
}

func TestSubmitAttendance(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	lecturer := seedLecturer(t, db, "ada", true)
	course := seedCourse(t, db, lecturer.ID)

	now := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
	svc, err := NewAttendanceService(db, WithAttendanceClock(func() time.Time { return now }))
	require.NoError(t, err)

	record, err := svc.Submit(context.Background(), SubmitInput{
		CourseID:       course.ID,
		StudentName:    "Student One",
		StudentAdminNo: "ADM001",
	})
	require.NoError(t, err)
	require.Equal(t, course.ID, record.CourseID)
	require.True(t, record.Timestamp.Equal(now))
}

func TestSubmitAttendanceValidation(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	lecturer := seedLecturer(t, db, "ada", true)
	course := seedCourse(t, db, lecturer.ID)

	svc, err := NewAttendanceService(db)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), SubmitInput{
		CourseID:    course.ID,
		StudentName: "Student One",
	})
	require.Error(t, err)

	_, err = svc.Submit(context.Background(), SubmitInput{
		CourseID:       course.ID,
		StudentAdminNo: "ADM001",
	})
	require.Error(t, err)
}

func TestSubmitAttendanceUnknownCourse(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	svc, err := NewAttendanceService(db)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), SubmitInput{
		CourseID:       "f81d4fae-7dec-41d0-a765-00a0c91e6bf6",
		StudentName:    "Student One",
		StudentAdminNo: "ADM001",
	})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
}

func TestSubmitAttendanceDuplicateSameDay(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	lecturer := seedLecturer(t, db, "ada", true)
	course := seedCourse(t, db, lecturer.ID)

	now := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
	svc, err := NewAttendanceService(db, WithAttendanceClock(func() time.Time { return now }))
	require.NoError(t, err)

	input := SubmitInput{
		CourseID:       course.ID,
		StudentName:    "Student One",
		StudentAdminNo: "ADM001",
	}

	_, err = svc.Submit(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), input)
	require.Error(t, err, "same admin number cannot sign in twice in one day")

	// The next day is a new session.
	now = now.Add(24 * time.Hour)
	_, err = svc.Submit(context.Background(), input)
	require.NoError(t, err)
}

func TestListForCourse(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	ada := seedLecturer(t, db, "ada", true)
	grace := seedLecturer(t, db, "grace", true)
	course := seedCourse(t, db, ada.ID)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, err := NewAttendanceService(db, WithAttendanceClock(func() time.Time { return now }))
	require.NoError(t, err)

	for i, adminNo := range []string{"ADM001", "ADM002", "ADM003"} {
		now = now.Add(time.Duration(i) * time.Minute)
		_, err = svc.Submit(context.Background(), SubmitInput{
			CourseID:       course.ID,
			StudentName:    "Student " + adminNo,
			StudentAdminNo: adminNo,
		})
		require.NoError(t, err)
	}

	records, err := svc.ListForCourse(context.Background(), ada.ID, course.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	// Newest first.
	require.Equal(t, "ADM003", records[0].StudentAdminNo)

	_, err = svc.ListForCourse(context.Background(), grace.ID, course.ID)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrForbidden.Code, appErr.Code)
}
