package services

import (
	"context"
	goerrors "errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campuskit/qrattend/internal/models"
	"github.com/campuskit/qrattend/pkg/crypto"
	"github.com/campuskit/qrattend/pkg/errors"
	"github.com/campuskit/qrattend/pkg/logger"
)

// LecturerService owns lecturer accounts: registration, verification resend,
// profile management, and staged email changes.
type LecturerService struct {
	db           *gorm.DB
	verification *VerificationService
	log          *zap.Logger
}

// NewLecturerService constructs the service.
func NewLecturerService(db *gorm.DB, verification *VerificationService) (*LecturerService, error) {
	if db == nil {
		return nil, goerrors.New("lecturer service: db is required")
	}
	if verification == nil {
		return nil, goerrors.New("lecturer service: verification service is required")
	}

	return &LecturerService{
		db:           db,
		verification: verification,
		log:          logger.WithModule("services.lecturer"),
	}, nil
}

// RegisterInput carries the fields of a new lecturer account.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Department  string
	PhoneNumber string
}

// Register creates an unverified account and issues a registration challenge.
// The account stays unverified until the challenge is redeemed, including
// when the verification email cannot be delivered.
func (s *LecturerService) Register(ctx context.Context, input RegisterInput) (*models.Lecturer, *IssueResult, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if username == "" || email == "" || input.Password == "" {
		return nil, nil, errors.NewBadRequest("Username, email, and password are required")
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("lecturer service: hash password: %w", err))
	}

	lecturer := &models.Lecturer{
		Username:    username,
		Email:       email,
		Password:    hash,
		FirstName:   strings.TrimSpace(input.FirstName),
		LastName:    strings.TrimSpace(input.LastName),
		Department:  strings.TrimSpace(input.Department),
		PhoneNumber: strings.TrimSpace(input.PhoneNumber),
		IsActive:    true,
	}

	if err := s.db.WithContext(ctx).Create(lecturer).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, nil, errors.NewBadRequest("Username or email is already registered")
		}
		return nil, nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("lecturer service: create: %w", err))
	}

	issued, err := s.verification.Issue(ctx, IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     models.VerifyPurposeRegistration,
		TargetEmail: email,
		DisplayName: lecturer.FullName(),
	})
	if err != nil {
		// The account exists; surfacing a challenge failure here would strand
		// it, so report it as an undelivered challenge instead.
		s.log.Error("issue registration challenge failed",
			zap.String("lecturer_id", lecturer.ID),
			zap.Error(err))
		return lecturer, &IssueResult{DeliveryFailed: true}, nil
	}

	return lecturer, issued, nil
}

// ResendVerification issues a fresh registration challenge for the address.
// Unknown and already verified addresses return no error and no result, so
// responses cannot reveal whether an account exists.
func (s *LecturerService) ResendVerification(ctx context.Context, email string) (*IssueResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.NewBadRequest("Email is required")
	}

	var lecturer models.Lecturer
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&lecturer).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("lecturer service: find by email: %w", err))
	}

	if lecturer.EmailVerified {
		return nil, nil
	}

	issued, err := s.verification.Issue(ctx, IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     models.VerifyPurposeRegistration,
		TargetEmail: email,
		DisplayName: lecturer.FullName(),
	})
	if err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("lecturer service: reissue challenge: %w", err))
	}

	return issued, nil
}

// Get loads a lecturer by id.
func (s *LecturerService) Get(ctx context.Context, id string) (*models.Lecturer, error) {
	var lecturer models.Lecturer
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&lecturer).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound.WithMessage("Lecturer not found")
	}
	if err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("lecturer service: get: %w", err))
	}
	return &lecturer, nil
}

// UpdateProfileInput holds optional profile updates. Nil fields stay as-is.
type UpdateProfileInput struct {
	FirstName   *string
	LastName    *string
	Department  *string
	PhoneNumber *string
}

// UpdateProfile applies the provided profile fields.
func (s *LecturerService) UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (*models.Lecturer, error) {
	lecturer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.Department != nil {
		updates["department"] = strings.TrimSpace(*input.Department)
	}
	if input.PhoneNumber != nil {
		updates["phone_number"] = strings.TrimSpace(*input.PhoneNumber)
	}

	if len(updates) == 0 {
		return lecturer, nil
	}

	if err := s.db.WithContext(ctx).Model(lecturer).Updates(updates).Error; err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("lecturer service: update profile: %w", err))
	}

	return s.Get(ctx, id)
}

// StageEmailChange verifies the password and issues an email change challenge
// targeting the new address. The stored email only changes once the challenge
// is redeemed.
func (s *LecturerService) StageEmailChange(ctx context.Context, id, newEmail, password string) (*IssueResult, error) {
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))
	if newEmail == "" {
		return nil, errors.NewBadRequest("New email is required")
	}

	lecturer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !crypto.VerifyPassword(lecturer.Password, password) {
		return nil, errors.ErrInvalidCredentials.WithMessage("Password is incorrect")
	}

	if strings.EqualFold(lecturer.Email, newEmail) {
		return nil, errors.NewBadRequest("New email matches the current address")
	}

	issued, err := s.verification.Issue(ctx, IssueInput{
		LecturerID:  lecturer.ID,
		Purpose:     models.VerifyPurposeEmailChange,
		TargetEmail: newEmail,
		DisplayName: lecturer.FullName(),
	})
	if err != nil {
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("lecturer service: stage email change: %w", err))
	}

	return issued, nil
}
