package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/qrattend/internal/services"
	"github.com/campuskit/qrattend/pkg/errors"
	"github.com/campuskit/qrattend/pkg/response"
)

// CourseHandler exposes a lecturer's course CRUD and QR generation endpoints.
type CourseHandler struct {
	courses    *services.CourseService
	attendance *services.AttendanceService
}

func NewCourseHandler(courses *services.CourseService, attendance *services.AttendanceService) *CourseHandler {
	return &CourseHandler{courses: courses, attendance: attendance}
}

type courseRequest struct {
	Title     string `json:"title" validate:"required,max=200"`
	Day       string `json:"day" validate:"required,day_of_week"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
}

// GET /api/courses
func (h *CourseHandler) List(c *gin.Context) {
	id, ok := lecturerID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	courses, err := h.courses.List(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"courses": courses})
}

// POST /api/courses
func (h *CourseHandler) Create(c *gin.Context) {
	id, ok := lecturerID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req courseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	course, err := h.courses.Create(requestContext(c), id, services.CourseInput{
		Title:     req.Title,
		Day:       req.Day,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, course)
}

// GET /api/courses/:id
func (h *CourseHandler) Get(c *gin.Context) {
	id, ok := lecturerID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	course, err := h.courses.Get(requestContext(c), id, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, course)
}

// PUT /api/courses/:id
func (h *CourseHandler) Update(c *gin.Context) {
	id, ok := lecturerID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req courseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	course, err := h.courses.Update(requestContext(c), id, c.Param("id"), services.CourseInput{
		Title:     req.Title,
		Day:       req.Day,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, course)
}

// DELETE /api/courses/:id
func (h *CourseHandler) Delete(c *gin.Context) {
	id, ok := lecturerID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.courses.Delete(requestContext(c), id, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/courses/:id/qrcode
//
// The payload keeps qr_code_url at the top level so the lecturer dashboard
// can swap the displayed image without unwrapping an envelope.
func (h *CourseHandler) GenerateQR(c *gin.Context) {
	id, ok := lecturerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": errors.ErrUnauthorized.Message,
		})
		return
	}

	course, err := h.courses.GenerateQR(requestContext(c), id, c.Param("id"))
	if err != nil {
		appErr := errors.FromError(err)
		c.JSON(appErr.StatusCode, gin.H{
			"success": false,
			"message": appErr.Message,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"qr_code_url": course.QRCodeURL,
		"message":     "QR code generated",
	})
}

// GET /api/courses/:id/attendance
func (h *CourseHandler) ListAttendance(c *gin.Context) {
	id, ok := lecturerID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	records, err := h.attendance.ListForCourse(requestContext(c), id, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"records": records})
}
