package api

import (
	"github.com/gin-gonic/gin"

	"github.com/campuskit/qrattend/internal/handlers"
)

func registerCourseRoutes(r *gin.Engine, requireAuth gin.HandlerFunc, h *handlers.CourseHandler) {
	courses := r.Group("/api/courses", requireAuth)
	{
		courses.GET("", h.List)
		courses.POST("", h.Create)
		courses.GET("/:id", h.Get)
		courses.PUT("/:id", h.Update)
		courses.DELETE("/:id", h.Delete)
		courses.POST("/:id/qrcode", h.GenerateQR)
		courses.GET("/:id/attendance", h.ListAttendance)
	}
}
