package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/campuskit/qrattend/internal/auth"
	"github.com/campuskit/qrattend/internal/models"
	"github.com/campuskit/qrattend/internal/services"
	"github.com/campuskit/qrattend/pkg/errors"
	"github.com/campuskit/qrattend/pkg/response"
)

// ProfileHandler manages the authenticated lecturer's own account.
type ProfileHandler struct {
	lecturers    *services.LecturerService
	verification *services.VerificationService
	provider     *iauth.LocalProvider
}

func NewProfileHandler(lecturers *services.LecturerService, verification *services.VerificationService, provider *iauth.LocalProvider) *ProfileHandler {
	return &ProfileHandler{
		lecturers:    lecturers,
		verification: verification,
		provider:     provider,
	}
}

type updateProfileRequest struct {
	FirstName   *string `json:"first_name" validate:"omitempty,max=50"`
	LastName    *string `json:"last_name" validate:"omitempty,max=50"`
	Department  *string `json:"department" validate:"omitempty,max=100"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=15"`
}

// PUT /api/profile
func (h *ProfileHandler) Update(c *gin.Context) {
	id, ok := lecturerID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	lecturer, err := h.lecturers.UpdateProfile(requestContext(c), id, services.UpdateProfileInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Department:  req.Department,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, publicLecturer(lecturer))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=10"`
}

// PUT /api/profile/password
func (h *ProfileHandler) ChangePassword(c *gin.Context) {
	id, ok := lecturerID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.provider.ChangePassword(id, req.CurrentPassword, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{"changed": true}, "Password updated.")
}

type changeEmailRequest struct {
	NewEmail string `json:"new_email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// POST /api/profile/email
//
// Stages an email change. The stored address only switches once the code
// sent to the new address is confirmed.
func (h *ProfileHandler) RequestEmailChange(c *gin.Context) {
	id, ok := lecturerID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req changeEmailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	issued, err := h.lecturers.StageEmailChange(requestContext(c), id, req.NewEmail, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{
		"delivery_failed": issued.DeliveryFailed,
		"expires_at":      issued.ExpiresAt,
	}, "A confirmation code has been sent to the new address.")
}

type confirmEmailRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// POST /api/profile/email/confirm
func (h *ProfileHandler) ConfirmEmailChange(c *gin.Context) {
	id, ok := lecturerID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req confirmEmailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	lecturer, err := h.verification.Redeem(requestContext(c), services.RedeemInput{
		Purpose:    models.VerifyPurposeEmailChange,
		Code:       req.Code,
		LecturerID: id,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, publicLecturer(lecturer), "Email address updated.")
}
