package api

import (
	"github.com/gin-gonic/gin"

	"github.com/campuskit/qrattend/internal/handlers"
)

// Attendance routes are public: students scan a QR code and submit without
// an account.
func registerAttendanceRoutes(r *gin.Engine, h *handlers.AttendanceHandler) {
	r.GET("/attend/:courseID", h.GetCourse)
	r.POST("/attend/:courseID", h.Submit)
}
