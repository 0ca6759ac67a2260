package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/customeros/codewatch/api/errors"
	"github.com/customeros/codewatch/interfaces"
	"github.com/customeros/codewatch/internal/tracing"
)

func StartMonitoring(monitor interfaces.MonitorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "StartMonitoring")
		defer span.Finish()

		started, err := monitor.Start(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}

		status := "started"
		if !started {
			status = "already_running"
		}
		c.JSON(http.StatusOK, gin.H{"status": status})
	}
}

func StopMonitoring(monitor interfaces.MonitorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "stopped"
		if !monitor.Stop() {
			status = "not_running"
		}
		c.JSON(http.StatusOK, gin.H{"status": status})
	}
}

// CheckNow forces a full resync and reports what it found to be new.
func CheckNow(monitor interfaces.MonitorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "CheckNow")
		defer span.Finish()

		added, err := monitor.CheckNow(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"newRecords": len(added),
			"records":    added,
			"total":      monitor.Stats().Total,
		})
	}
}
