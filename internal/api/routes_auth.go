package api

import (
	"github.com/gin-gonic/gin"

	"github.com/campuskit/qrattend/internal/handlers"
)

func registerAuthRoutes(r *gin.Engine, requireAuth gin.HandlerFunc, h *handlers.AuthHandler) {
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/verify", h.Verify)
		auth.POST("/resend-verification", h.ResendVerification)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", requireAuth, h.Logout)
		auth.GET("/me", requireAuth, h.Me)
	}
}
