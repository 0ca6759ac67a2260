package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/customeros/codewatch/internal/utils"
)

// CustomContextMiddleware adds custom context to all requests
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("RequestId") == "" {
			c.Set("RequestId", utils.GenerateNanoIDWithPrefix("req", 12))
		}
		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
