package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(config APIKeyConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(config))
	r.GET("/api/stats", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		config   APIKeyConfig
		header   string
		wantCode int
	}{
		{name: "no key configured", config: APIKeyConfig{}, wantCode: http.StatusOK},
		{name: "missing key", config: APIKeyConfig{ValidAPIKey: "s3cret"}, wantCode: http.StatusUnauthorized},
		{name: "wrong key", config: APIKeyConfig{ValidAPIKey: "s3cret"}, header: "guess", wantCode: http.StatusUnauthorized},
		{name: "valid key", config: APIKeyConfig{ValidAPIKey: "s3cret"}, header: "s3cret", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			if tt.header != "" {
				req.Header.Set(DefaultAPIKeyHeader, tt.header)
			}
			w := httptest.NewRecorder()

			newRouter(tt.config).ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestCustomContextMiddleware_SetsRequestId(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CustomContextMiddleware("codewatch-api"))
	var requestID string
	r.GET("/api/stats", func(c *gin.Context) {
		requestID = c.GetString("RequestId")
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.Contains(t, requestID, "req")
}
