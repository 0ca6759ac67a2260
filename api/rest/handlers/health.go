package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/codewatch/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(monitor interfaces.MonitorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"monitoring": monitor.Active(),
		})
	}
}

// Status returns the session state of every configured account
func Status(monitor interfaces.MonitorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := gin.H{
			"active":   monitor.Active(),
			"accounts": monitor.Status(),
		}
		if runID := monitor.RunID(); runID != "" {
			response["runId"] = runID
		}
		c.JSON(http.StatusOK, response)
	}
}
