package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/campuskit/qrattend/internal/auth"
	"github.com/campuskit/qrattend/internal/middleware"
	"github.com/campuskit/qrattend/internal/models"
	"github.com/campuskit/qrattend/internal/security"
	"github.com/campuskit/qrattend/internal/services"
	"github.com/campuskit/qrattend/pkg/errors"
	"github.com/campuskit/qrattend/pkg/logger"
	"github.com/campuskit/qrattend/pkg/metrics"
	"github.com/campuskit/qrattend/pkg/response"
)

// AuthHandler manages registration, login, verification, and session flows.
type AuthHandler struct {
	lecturers    *services.LecturerService
	verification *services.VerificationService
	provider     *iauth.LocalProvider
	sessions     *iauth.SessionService
	limiter      *security.Limiter
	recorder     *security.Recorder
	log          *zap.Logger
}

func NewAuthHandler(
	lecturers *services.LecturerService,
	verification *services.VerificationService,
	provider *iauth.LocalProvider,
	sessions *iauth.SessionService,
	limiter *security.Limiter,
	recorder *security.Recorder,
) *AuthHandler {
	return &AuthHandler{
		lecturers:    lecturers,
		verification: verification,
		provider:     provider,
		sessions:     sessions,
		limiter:      limiter,
		recorder:     recorder,
		log:          logger.WithModule("handlers.auth"),
	}
}

type registerRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=50"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=10"`
	FirstName   string `json:"first_name" validate:"max=50"`
	LastName    string `json:"last_name" validate:"max=50"`
	Department  string `json:"department" validate:"max=100"`
	PhoneNumber string `json:"phone_number" validate:"max=15"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	decision := h.limiter.Check(requestContext(c), security.CheckInput{
		Scope:     models.AttemptScopeRegistration,
		IPAddress: c.ClientIP(),
		CountAll:  true,
	})
	if decision.Blocked {
		metrics.AuthAttempts.WithLabelValues("rate_limited").Inc()
		rateLimited(c, decision)
		return
	}

	lecturer, issued, err := h.lecturers.Register(requestContext(c), services.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Department:  req.Department,
		PhoneNumber: req.PhoneNumber,
	})

	h.record(c, models.AttemptScopeRegistration, req.Username, err == nil)

	if err != nil {
		response.Error(c, err)
		return
	}

	message := "Account created. Check your email for a verification link."
	if issued.DeliveryFailed {
		message = "Account created, but the verification email could not be sent. Request a new one from the login page."
	}

	response.SuccessWithMessage(c, http.StatusCreated, gin.H{
		"lecturer":        publicLecturer(lecturer),
		"delivery_failed": issued.DeliveryFailed,
	}, message)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	decision := h.limiter.Check(requestContext(c), security.CheckInput{
		Scope:     models.AttemptScopeLogin,
		IPAddress: c.ClientIP(),
		Username:  req.Username,
	})
	if decision.Blocked {
		metrics.AuthAttempts.WithLabelValues("rate_limited").Inc()
		rateLimited(c, decision)
		return
	}

	lecturer, err := h.provider.Authenticate(iauth.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
	})

	h.record(c, models.AttemptScopeLogin, req.Username, err == nil)

	if err != nil {
		response.Error(c, err)
		return
	}

	pair, _, err := h.sessions.CreateSession(lecturer.ID, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.log.Error("create session failed", zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"tokens":   tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
		"lecturer": publicLecturer(lecturer),
	})
}

type verifyRequest struct {
	Token string `json:"token" validate:"omitempty,min=32"`
	Code  string `json:"code" validate:"omitempty,len=6,numeric"`
	Email string `json:"email" validate:"omitempty,email"`
}

// POST /api/auth/verify
func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.Token == "" && req.Code == "" {
		response.Error(c, errors.NewBadRequest("token or code is required"))
		return
	}

	lecturer, err := h.verification.Redeem(requestContext(c), services.RedeemInput{
		Purpose: models.VerifyPurposeRegistration,
		Token:   req.Token,
		Code:    req.Code,
		Email:   req.Email,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{
		"lecturer": publicLecturer(lecturer),
	}, "Email verified, you can now log in.")
}

type resendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/resend-verification
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req resendRequest
	if !bindAndValidate(c, &req) {
		return
	}

	decision := h.limiter.Check(requestContext(c), security.CheckInput{
		Scope:     models.AttemptScopeResendVerify,
		IPAddress: c.ClientIP(),
		Username:  req.Email,
		CountAll:  true,
	})
	if decision.Blocked {
		metrics.AuthAttempts.WithLabelValues("rate_limited").Inc()
		rateLimited(c, decision)
		return
	}

	issued, err := h.lecturers.ResendVerification(requestContext(c), req.Email)

	h.record(c, models.AttemptScopeResendVerify, req.Email, err == nil)

	if err != nil {
		response.Error(c, err)
		return
	}

	// The response is identical whether or not the address has an account,
	// so it cannot be used to enumerate lecturers.
	deliveryFailed := issued != nil && issued.DeliveryFailed
	response.SuccessWithMessage(c, http.StatusOK, gin.H{
		"delivery_failed": deliveryFailed,
	}, "If an unverified account exists for that address, a new verification email has been sent.")
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, _, err := h.sessions.RefreshSession(req.RefreshToken)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	v, ok := c.Get(middleware.CtxSessionIDKey)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	sid, _ := v.(string)
	if sid == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(sid); err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	id, ok := lecturerID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	lecturer, err := h.lecturers.Get(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, publicLecturer(lecturer))
}

func (h *AuthHandler) record(c *gin.Context, scope, username string, successful bool) {
	err := h.recorder.Record(requestContext(c), security.Attempt{
		Scope:      scope,
		IPAddress:  c.ClientIP(),
		Username:   username,
		Successful: successful,
	})
	if err != nil {
		// A full ledger outage degrades limiting; the request itself proceeds.
		h.log.Warn("record attempt failed", zap.String("scope", scope), zap.Error(err))
	}
}

func rateLimited(c *gin.Context, decision security.Decision) {
	seconds := int(decision.RetryAfter.Seconds())
	if seconds > 0 {
		c.Header("Retry-After", strconv.Itoa(seconds))
	}
	response.Error(c, errors.ErrRateLimited)
}

func publicLecturer(l *models.Lecturer) gin.H {
	return gin.H{
		"id":             l.ID,
		"username":       l.Username,
		"email":          l.Email,
		"first_name":     l.FirstName,
		"last_name":      l.LastName,
		"department":     l.Department,
		"phone_number":   l.PhoneNumber,
		"email_verified": l.EmailVerified,
		"is_active":      l.IsActive,
	}
}
