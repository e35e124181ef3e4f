package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/qrattend/internal/app"
	"github.com/campuskit/qrattend/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/health", disabledHealthHandler)
		return
	}
	r.GET("/health", handlers.Health())
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
