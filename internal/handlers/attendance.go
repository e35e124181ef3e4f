package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/qrattend/internal/services"
	"github.com/campuskit/qrattend/pkg/response"
)

// AttendanceHandler exposes the public attendance endpoints students reach
// after scanning a course QR code. No authentication is involved.
type AttendanceHandler struct {
	courses    *services.CourseService
	attendance *services.AttendanceService
}

func NewAttendanceHandler(courses *services.CourseService, attendance *services.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{courses: courses, attendance: attendance}
}

// GET /attend/:courseID
//
// Returns the schedule fields a student needs to confirm they scanned the
// right course. Lecturer details and the attendance list stay private.
func (h *AttendanceHandler) GetCourse(c *gin.Context) {
	course, err := h.courses.GetPublic(requestContext(c), c.Param("courseID"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"id":         course.ID,
		"title":      course.Title,
		"day":        course.Day,
		"start_time": course.StartTime,
		"end_time":   course.EndTime,
	})
}

type submitRequest struct {
	StudentName    string `json:"student_name" validate:"required,max=100"`
	StudentAdminNo string `json:"student_admin_no" validate:"required,max=20"`
}

// POST /attend/:courseID
func (h *AttendanceHandler) Submit(c *gin.Context) {
	var req submitRequest
	if !bindAndValidate(c, &req) {
		return
	}

	record, err := h.attendance.Submit(requestContext(c), services.SubmitInput{
		CourseID:       c.Param("courseID"),
		StudentName:    req.StudentName,
		StudentAdminNo: req.StudentAdminNo,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusCreated, gin.H{
		"student_name": record.StudentName,
		"timestamp":    record.Timestamp,
	}, "Attendance recorded.")
}
