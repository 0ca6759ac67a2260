package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/codewatch/api/middleware"
	"github.com/customeros/codewatch/api/rest/handlers"
	"github.com/customeros/codewatch/interfaces"
	"github.com/customeros/codewatch/internal/tracing"
)

const appSource = "codewatch-api"

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, monitor interfaces.MonitorService, stream handlers.EventStream, apikey string) {
	if monitor == nil {
		panic("Monitor cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// Health check and status endpoints (no custom context needed)
	r.GET("/health", handlers.HealthCheck(monitor))
	r.GET("/status", handlers.Status(monitor))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		ValidAPIKey: apikey,
	})

	api := r.Group("/api")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware(appSource))
	api.Use(middleware.TracingMiddleware())
	{
		api.GET("/emails", handlers.ListEmails(monitor))
		api.GET("/stats", handlers.Stats(monitor))
		api.GET("/accounts", handlers.ListAccounts(monitor))

		api.POST("/start", handlers.StartMonitoring(monitor))
		api.POST("/stop", handlers.StopMonitoring(monitor))
		api.POST("/check", handlers.CheckNow(monitor))

		api.GET("/settings", handlers.GetSettings(monitor))
		api.POST("/settings", handlers.UpdateSettings(monitor))

		if stream != nil {
			api.GET("/stream", handlers.Stream(stream, monitor))
		}
	}
}
