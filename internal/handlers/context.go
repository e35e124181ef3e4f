package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/qrattend/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// lecturerID extracts the authenticated lecturer from the gin context.
func lecturerID(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.CtxLecturerIDKey)
	if !ok {
		return "", false
	}
	id, _ := v.(string)
	return id, id != ""
}
