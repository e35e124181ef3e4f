package services

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campuskit/qrattend/internal/models"
	"github.com/campuskit/qrattend/internal/qr"
	"github.com/campuskit/qrattend/pkg/errors"
	"github.com/campuskit/qrattend/pkg/metrics"
)

// CourseOption customises the CourseService.
type CourseOption func(*CourseService)

// WithCourseClock injects a custom time source.
func WithCourseClock(clock func() time.Time) CourseOption {
	return func(s *CourseService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// CourseService manages a lecturer's courses and their session QR codes.
type CourseService struct {
	db      *gorm.DB
	encoder *qr.Encoder
	now     func() time.Time
}

// NewCourseService constructs the service.
func NewCourseService(db *gorm.DB, encoder *qr.Encoder, opts ...CourseOption) (*CourseService, error) {
	if db == nil {
		return nil, goerrors.New("course service: db is required")
	}
	if encoder == nil {
		return nil, goerrors.New("course service: qr encoder is required")
	}

	service := &CourseService{
		db:      db,
		encoder: encoder,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// CourseInput holds the writable fields of a course.
type CourseInput struct {
	Title     string
	Day       string
	StartTime string
	EndTime   string
}

func (in CourseInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return errors.NewBadRequest("Course title is required")
	}
	if !isCourseDay(in.Day) {
		return errors.NewBadRequest("Day must be a weekday name, Monday through Sunday")
	}
	if in.StartTime >= in.EndTime {
		return errors.NewBadRequest("End time must be after start time")
	}
	return nil
}

func isCourseDay(day string) bool {
	for _, d := range models.CourseDays {
		if d == day {
			return true
		}
	}
	return false
}

// Create adds a course owned by the lecturer.
func (s *CourseService) Create(ctx context.Context, lecturerID string, input CourseInput) (*models.Course, error) {
	if strings.TrimSpace(lecturerID) == "" {
		return nil, errors.ErrUnauthorized
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	course := &models.Course{
		LecturerID: lecturerID,
		Title:      strings.TrimSpace(input.Title),
		Day:        input.Day,
		StartTime:  input.StartTime,
		EndTime:    input.EndTime,
	}

	if err := s.db.WithContext(ctx).Create(course).Error; err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("course service: create: %w", err))
	}

	return course, nil
}

// List returns the lecturer's courses ordered by day and start time.
func (s *CourseService) List(ctx context.Context, lecturerID string) ([]models.Course, error) {
	var courses []models.Course
	err := s.db.WithContext(ctx).
		Where("lecturer_id = ?", lecturerID).
		Order("day ASC, start_time ASC").
		Find(&courses).Error
	if err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("course service: list: %w", err))
	}
	return courses, nil
}

// Get loads a course and enforces ownership.
func (s *CourseService) Get(ctx context.Context, lecturerID, courseID string) (*models.Course, error) {
	course, err := s.find(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.LecturerID != lecturerID {
		return nil, errors.ErrForbidden.WithMessage("Course belongs to another lecturer")
	}
	return course, nil
}

// GetPublic loads a course without an ownership check, for the public
// attendance page. Only schedule fields should be exposed to students.
func (s *CourseService) GetPublic(ctx context.Context, courseID string) (*models.Course, error) {
	return s.find(ctx, courseID)
}

func (s *CourseService) find(ctx context.Context, courseID string) (*models.Course, error) {
	var course models.Course
	err := s.db.WithContext(ctx).Where("id = ?", courseID).Take(&course).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound.WithMessage("Course not found")
	}
	if err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("course service: find: %w", err))
	}
	return &course, nil
}

// Update applies new schedule fields to an owned course.
func (s *CourseService) Update(ctx context.Context, lecturerID, courseID string, input CourseInput) (*models.Course, error) {
	course, err := s.Get(ctx, lecturerID, courseID)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	updates := map[string]any{
		"title":      strings.TrimSpace(input.Title),
		"day":        input.Day,
		"start_time": input.StartTime,
		"end_time":   input.EndTime,
	}

	if err := s.db.WithContext(ctx).Model(course).Updates(updates).Error; err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("course service: update: %w", err))
	}

	return s.Get(ctx, lecturerID, courseID)
}

// Delete removes an owned course along with its attendance records.
func (s *CourseService) Delete(ctx context.Context, lecturerID, courseID string) error {
	course, err := s.Get(ctx, lecturerID, courseID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Select("Attendances").Delete(course).Error; err != nil {
		return errors.ErrInternalServer.WithInternal(fmt.Errorf("course service: delete: %w", err))
	}

	return nil
}

// qrMeta is persisted alongside the QR image URL so a regenerated code can be
// told apart from the one a student scanned.
type qrMeta struct {
	Payload     string    `json:"payload"`
	GeneratedAt time.Time `json:"generated_at"`
}

// GenerateQR renders a session QR code for an owned course, stores the image,
// and records its URL on the course. Storage failures leave the previous code
// in place.
func (s *CourseService) GenerateQR(ctx context.Context, lecturerID, courseID string) (*models.Course, error) {
	course, err := s.Get(ctx, lecturerID, courseID)
	if err != nil {
		metrics.QRGenerations.WithLabelValues("error").Inc()
		return nil, err
	}

	session := qr.SessionFromCourse(course, s.now())

	publicURL, err := s.encoder.Generate(session)
	if err != nil {
		metrics.QRGenerations.WithLabelValues("error").Inc()
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("course service: generate qr: %w", err))
	}

	meta, err := json.Marshal(qrMeta{
		Payload:     s.encoder.Payload(session),
		GeneratedAt: session.GeneratedAt.UTC(),
	})
	if err != nil {
		metrics.QRGenerations.WithLabelValues("error").Inc()
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("course service: marshal qr meta: %w", err))
	}

	updates := map[string]any{
		"qr_code_url":  publicURL,
		"qr_code_meta": datatypes.JSON(meta),
	}

	if err := s.db.WithContext(ctx).Model(course).Updates(updates).Error; err != nil {
		metrics.QRGenerations.WithLabelValues("error").Inc()
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("course service: store qr: %w", err))
	}

	course.QRCodeURL = publicURL
	course.QRCodeMeta = meta

	metrics.QRGenerations.WithLabelValues("success").Inc()
	return course, nil
}
