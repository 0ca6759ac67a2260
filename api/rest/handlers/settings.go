package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/customeros/codewatch/api/errors"
	"github.com/customeros/codewatch/interfaces"
	"github.com/customeros/codewatch/internal/models"
)

func GetSettings(monitor interfaces.MonitorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, monitor.Settings())
	}
}

// UpdateSettings applies a partial update. An invalid update is rejected as a
// whole and the current settings are left unchanged.
func UpdateSettings(monitor interfaces.MonitorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var update models.SettingsUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		settings, err := monitor.UpdateSettings(update)
		if err != nil {
			apierrors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, settings)
	}
}
