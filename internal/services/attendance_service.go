package services

import (
	"context"
	goerrors "errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/campuskit/qrattend/internal/models"
	"github.com/campuskit/qrattend/pkg/errors"
	"github.com/campuskit/qrattend/pkg/metrics"
)

// AttendanceOption customises the AttendanceService.
type AttendanceOption func(*AttendanceService)

// WithAttendanceClock injects a custom time source.
func WithAttendanceClock(clock func() time.Time) AttendanceOption {
	return func(s *AttendanceService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// AttendanceService records student check-ins and exposes them to the owning
// lecturer. Submission is public; students are not authenticated.
type AttendanceService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAttendanceService constructs the service.
func NewAttendanceService(db *gorm.DB, opts ...AttendanceOption) (*AttendanceService, error) {
	if db == nil {
		return nil, goerrors.New("attendance service: db is required")
	}

	service := &AttendanceService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// SubmitInput is a student's check-in for a course session.
type SubmitInput struct {
	CourseID       string
	StudentName    string
	StudentAdminNo string
}

// Submit records an attendance entry against the course. Duplicate admin
// numbers within the same day are rejected so a student cannot sign in twice
// for one session.
func (s *AttendanceService) Submit(ctx context.Context, input SubmitInput) (*models.AttendanceRecord, error) {
	name := strings.TrimSpace(input.StudentName)
	adminNo := strings.TrimSpace(input.StudentAdminNo)

	if name == "" || adminNo == "" {
		return nil, errors.NewBadRequest("Student name and admin number are required")
	}

	var course models.Course
	err := s.db.WithContext(ctx).Where("id = ?", input.CourseID).Take(&course).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound.WithMessage("Course not found")
	}
	if err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("attendance service: find course: %w", err))
	}

	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var existing int64
	err = s.db.WithContext(ctx).
		Model(&models.AttendanceRecord{}).
		Where("course_id = ? AND student_admin_no = ? AND timestamp >= ?", course.ID, adminNo, dayStart).
		Count(&existing).Error
	if err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("attendance service: check duplicate: %w", err))
	}
	if existing > 0 {
		return nil, errors.NewBadRequest("Attendance already recorded for this session")
	}

	record := &models.AttendanceRecord{
		CourseID:       course.ID,
		StudentName:    name,
		StudentAdminNo: adminNo,
		Timestamp:      now,
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("attendance service: create: %w", err))
	}

	metrics.AttendanceSubmissions.Inc()
	return record, nil
}

// ListForCourse returns a course's attendance records, newest first. Only the
// owning lecturer may read them.
func (s *AttendanceService) ListForCourse(ctx context.Context, lecturerID, courseID string) ([]models.AttendanceRecord, error) {
	var course models.Course
	err := s.db.WithContext(ctx).Where("id = ?", courseID).Take(&course).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound.WithMessage("Course not found")
	}
	if err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("attendance service: find course: %w", err))
	}
	if course.LecturerID != lecturerID {
		return nil, errors.ErrForbidden.WithMessage("Course belongs to another lecturer")
	}

	var records []models.AttendanceRecord
	err = s.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("timestamp DESC").
		Find(&records).Error
	if err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("attendance service: list: %w", err))
	}

	return records, nil
}
