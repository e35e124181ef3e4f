package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	goerrors "errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campuskit/qrattend/internal/models"
	"github.com/campuskit/qrattend/pkg/crypto"
	"github.com/campuskit/qrattend/pkg/errors"
	"github.com/campuskit/qrattend/pkg/logger"
	"github.com/campuskit/qrattend/pkg/mail"
	"github.com/campuskit/qrattend/pkg/metrics"
)

const (
	// RegistrationChallengeTTL is how long a registration token stays valid.
	RegistrationChallengeTTL = 24 * time.Hour
	// EmailChangeChallengeTTL is how long an email change code stays valid.
	EmailChangeChallengeTTL = 15 * time.Minute

	challengeTokenBytes = 24
	challengeCodeDigits = 6
)

// VerificationOption customises the VerificationService.
type VerificationOption func(*VerificationService)

// WithVerificationBaseURL sets the base URL used in verification links.
func WithVerificationBaseURL(url string) VerificationOption {
	return func(s *VerificationService) {
		s.baseURL = strings.TrimRight(strings.TrimSpace(url), "/")
	}
}

// WithVerificationClock injects a custom time source.
func WithVerificationClock(clock func() time.Time) VerificationOption {
	return func(s *VerificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// VerificationService issues and redeems email verification challenges. Each
// challenge carries a long token for link-based flows and an independent
// six digit code for manual entry; either proves control of the address.
type VerificationService struct {
	db      *gorm.DB
	mailer  mail.Mailer
	baseURL string
	log     *zap.Logger
	now     func() time.Time
}

// NewVerificationService constructs the service. The mailer is optional; a
// nil mailer skips delivery and reports the challenge as undelivered.
func NewVerificationService(db *gorm.DB, mailer mail.Mailer, opts ...VerificationOption) (*VerificationService, error) {
	if db == nil {
		return nil, goerrors.New("verification service: db is required")
	}

	service := &VerificationService{
		db:     db,
		mailer: mailer,
		log:    logger.WithModule("services.verification"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// IssueInput identifies the lecturer and address a challenge targets.
type IssueInput struct {
	LecturerID  string
	Purpose     string
	TargetEmail string

	// DisplayName personalises the outbound email; empty falls back to a
	// plain greeting.
	DisplayName string
}

// IssueResult reports the issued challenge. Token and Code are returned in
// plain form exactly once; only the token hash is persisted.
type IssueResult struct {
	Token          string
	Code           string
	Link           string
	ExpiresAt      time.Time
	DeliveryFailed bool
}

// Issue creates a fresh challenge for the lecturer and purpose, replacing
// any prior one, and attempts email delivery. A delivery failure does not
// invalidate the challenge and never verifies the account; the caller sees
// the failure in the result and can offer a resend.
func (s *VerificationService) Issue(ctx context.Context, input IssueInput) (*IssueResult, error) {
	lecturerID := strings.TrimSpace(input.LecturerID)
	targetEmail := strings.ToLower(strings.TrimSpace(input.TargetEmail))

	if lecturerID == "" {
		return nil, goerrors.New("verification service: lecturer id is required")
	}
	if targetEmail == "" {
		return nil, goerrors.New("verification service: target email is required")
	}

	ttl, err := challengeTTL(input.Purpose)
	if err != nil {
		return nil, err
	}

	token, err := crypto.GenerateToken(challengeTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("verification service: generate token: %w", err)
	}

	code, err := crypto.GenerateNumericCode(challengeCodeDigits)
	if err != nil {
		return nil, fmt.Errorf("verification service: generate code: %w", err)
	}

	now := s.now()
	challenge := models.VerificationChallenge{
		LecturerID:  lecturerID,
		Purpose:     input.Purpose,
		TokenHash:   challengeHash(token),
		Code:        code,
		TargetEmail: targetEmail,
		ExpiresAt:   now.Add(ttl),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("lecturer_id = ? AND purpose = ?", lecturerID, input.Purpose).
			Delete(&models.VerificationChallenge{}).Error; err != nil {
			return fmt.Errorf("cleanup existing: %w", err)
		}
		if err := tx.Create(&challenge).Error; err != nil {
			return fmt.Errorf("create challenge: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verification service: %w", err)
	}

	result := &IssueResult{
		Token:     token,
		Code:      code,
		Link:      s.challengeLink(token),
		ExpiresAt: challenge.ExpiresAt,
	}

	if err := s.deliver(ctx, input, targetEmail, result); err != nil {
		s.log.Warn("verification email delivery failed",
			zap.String("purpose", input.Purpose),
			zap.Error(err))
		result.DeliveryFailed = true
	}

	return result, nil
}

// RedeemInput carries the proof presented by the user. Token takes
// precedence; Code is matched within the purpose when no token is given.
// Email and LecturerID optionally narrow a code match to the expected
// address or challenge owner.
type RedeemInput struct {
	Purpose    string
	Token      string
	Code       string
	Email      string
	LecturerID string
}

// Redeem validates the presented token or code and applies the challenge's
// effect: registration marks the lecturer's email verified, email change
// swaps the stored address for the staged one. The challenge row is deleted
// in the same transaction, so a challenge redeems at most once.
func (s *VerificationService) Redeem(ctx context.Context, input RedeemInput) (*models.Lecturer, error) {
	challenge, err := s.findChallenge(ctx, input)
	if err != nil {
		metrics.Verifications.WithLabelValues(input.Purpose, "not_found").Inc()
		return nil, err
	}

	now := s.now()
	if challenge.Expired(now) {
		// A stale row is useless once presented; clear it immediately
		// instead of waiting for the scheduled purge.
		if err := s.db.WithContext(ctx).
			Where("id = ?", challenge.ID).
			Delete(&models.VerificationChallenge{}).Error; err != nil {
			s.log.Warn("clear expired challenge failed",
				zap.String("purpose", challenge.Purpose),
				zap.Error(err))
		}
		metrics.Verifications.WithLabelValues(challenge.Purpose, "expired").Inc()
		return nil, errors.ErrVerificationExpired
	}

	var lecturer models.Lecturer

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", challenge.LecturerID).Take(&lecturer).Error; err != nil {
			if goerrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.ErrVerificationNotFound
			}
			return fmt.Errorf("find lecturer: %w", err)
		}

		switch challenge.Purpose {
		case models.VerifyPurposeRegistration:
			if lecturer.EmailVerified {
				return errors.ErrAlreadyVerified
			}
			if err := tx.Model(&lecturer).Update("email_verified", true).Error; err != nil {
				return fmt.Errorf("mark verified: %w", err)
			}
			lecturer.EmailVerified = true
		case models.VerifyPurposeEmailChange:
			if err := tx.Model(&lecturer).Updates(map[string]any{
				"email":          challenge.TargetEmail,
				"email_verified": true,
			}).Error; err != nil {
				if isUniqueConstraintError(err) {
					return errors.NewBadRequest("Email address is already in use")
				}
				return fmt.Errorf("apply email change: %w", err)
			}
			lecturer.Email = challenge.TargetEmail
			lecturer.EmailVerified = true
		default:
			return fmt.Errorf("unknown purpose %q", challenge.Purpose)
		}

		// Deleting by id makes concurrent redeems race on the row: exactly
		// one transaction removes it, the loser rolls back.
		result := tx.Where("id = ?", challenge.ID).Delete(&models.VerificationChallenge{})
		if result.Error != nil {
			return fmt.Errorf("consume challenge: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errors.ErrVerificationNotFound
		}
		return nil
	})
	if err != nil {
		var appErr *errors.AppError
		if goerrors.As(err, &appErr) {
			metrics.Verifications.WithLabelValues(challenge.Purpose, "rejected").Inc()
			return nil, appErr
		}
		return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("verification service: %w", err))
	}

	metrics.Verifications.WithLabelValues(challenge.Purpose, "success").Inc()
	return &lecturer, nil
}

// PurgeExpired removes challenges past their expiry.
func (s *VerificationService) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now()).
		Delete(&models.VerificationChallenge{})
	if result.Error != nil {
		return 0, fmt.Errorf("verification service: purge expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *VerificationService) findChallenge(ctx context.Context, input RedeemInput) (*models.VerificationChallenge, error) {
	token := strings.TrimSpace(input.Token)
	code := strings.TrimSpace(input.Code)

	var challenge models.VerificationChallenge

	switch {
	case token != "":
		err := s.db.WithContext(ctx).
			Where("token_hash = ?", challengeHash(token)).
			Take(&challenge).Error
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrVerificationNotFound
		}
		if err != nil {
			return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("verification service: find by token: %w", err))
		}
	case code != "":
		query := s.db.WithContext(ctx).Where("purpose = ? AND code = ?", input.Purpose, code)
		if email := strings.ToLower(strings.TrimSpace(input.Email)); email != "" {
			query = query.Where("target_email = ?", email)
		}
		if owner := strings.TrimSpace(input.LecturerID); owner != "" {
			query = query.Where("lecturer_id = ?", owner)
		}
		err := query.Take(&challenge).Error
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrVerificationNotFound
		}
		if err != nil {
			return nil, errors.ErrInternalServer.WithInternal(fmt.Errorf("verification service: find by code: %w", err))
		}
	default:
		return nil, errors.NewBadRequest("Verification token or code is required")
	}

	if input.Purpose != "" && challenge.Purpose != input.Purpose {
		return nil, errors.ErrVerificationNotFound
	}

	return &challenge, nil
}

func (s *VerificationService) deliver(ctx context.Context, input IssueInput, email string, result *IssueResult) error {
	if s.mailer == nil {
		return goerrors.New("no mailer configured")
	}

	greeting := "Hello,"
	if name := strings.TrimSpace(input.DisplayName); name != "" {
		greeting = fmt.Sprintf("Hello %s,", name)
	}

	var subject, body string
	switch input.Purpose {
	case models.VerifyPurposeEmailChange:
		subject = "Confirm your new email address"
		body = fmt.Sprintf(
			"%s\n\nA request was made to change your account email to this address.\n\n"+
				"Enter this code to confirm: %s\n\n"+
				"The code expires in %s. If you did not request this change, ignore this message.\n",
			greeting, result.Code, EmailChangeChallengeTTL)
	default:
		subject = "Verify your lecturer account"
		body = fmt.Sprintf(
			"%s\n\nConfirm your email address by visiting the link below:\n%s\n\n"+
				"Or enter this code on the verification page: %s\n\n"+
				"The link expires in %s. If you did not register, ignore this message.\n",
			greeting, result.Link, result.Code, RegistrationChallengeTTL)
	}

	err := s.mailer.Send(ctx, mail.Message{
		To:      []string{email},
		Subject: subject,
		Body:    body,
	})
	if err != nil && !goerrors.Is(err, mail.ErrSMTPDisabled) {
		return err
	}
	return nil
}

func (s *VerificationService) challengeLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s/verify?token=%s", s.baseURL, token)
}

func challengeTTL(purpose string) (time.Duration, error) {
	switch purpose {
	case models.VerifyPurposeRegistration:
		return RegistrationChallengeTTL, nil
	case models.VerifyPurposeEmailChange:
		return EmailChangeChallengeTTL, nil
	default:
		return 0, fmt.Errorf("verification service: unknown purpose %q", purpose)
	}
}

func challengeHash(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
