package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/codewatch/interfaces"
	"github.com/customeros/codewatch/internal/enum"
	"github.com/customeros/codewatch/internal/tracing"
)

type AccountResponse struct {
	Email  string `json:"email"`
	Masked string `json:"masked"`
}

// ListEmails returns the working set, optionally filtered by ?type= and
// ?account=.
func ListEmails(monitor interfaces.MonitorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, _ := tracing.StartTracerSpan(c.Request.Context(), "ListEmails")
		defer span.Finish()

		category, ok := enum.ParseCategory(c.Query("type"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown type " + c.Query("type")})
			return
		}
		account := c.Query("account")
		span.SetTag("filter.type", category.String())

		records := monitor.Records(category, account)
		c.JSON(http.StatusOK, gin.H{
			"emails": records,
			"total":  len(records),
		})
	}
}

func Stats(monitor interfaces.MonitorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := monitor.Stats()
		c.JSON(http.StatusOK, gin.H{
			"total":            stats.Total,
			"byType":           stats.ByCategory,
			"byAccount":        stats.ByAccount,
			"monitoringActive": monitor.Active(),
		})
	}
}

// ListAccounts returns configured addresses. Credentials are never exposed.
func ListAccounts(monitor interfaces.MonitorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		accounts := monitor.Accounts()
		response := make([]AccountResponse, 0, len(accounts))
		for _, account := range accounts {
			response = append(response, AccountResponse{Email: account.Address, Masked: account.Masked()})
		}
		c.JSON(http.StatusOK, gin.H{"accounts": response})
	}
}
