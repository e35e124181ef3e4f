package api

import (
	"github.com/gin-gonic/gin"

	"github.com/campuskit/qrattend/internal/handlers"
)

func registerProfileRoutes(r *gin.Engine, requireAuth gin.HandlerFunc, h *handlers.ProfileHandler) {
	profile := r.Group("/api/profile", requireAuth)
	{
		profile.PUT("", h.Update)
		profile.PUT("/password", h.ChangePassword)
		profile.POST("/email", h.RequestEmailChange)
		profile.POST("/email/confirm", h.ConfirmEmailChange)
	}
}
