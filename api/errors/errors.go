package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	apperrors "github.com/customeros/codewatch/internal/errors"
)

type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// StatusFor maps an application error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNoAccounts):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrMonitorInactive), errors.Is(err, apperrors.ErrMonitorActive):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrResyncFailed), errors.Is(err, apperrors.ErrNetwork), errors.Is(err, apperrors.ErrAuth):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as JSON and aborts the request. Validation failures list
// every offending field.
func Respond(c *gin.Context, err error) {
	body := ErrorResponse{Error: err.Error()}

	var multi *apperrors.MultiErrors
	if errors.As(err, &multi) {
		body.Fields = make(map[string][]string, len(multi.Errors))
		for field, infos := range multi.Errors {
			for _, info := range infos {
				body.Fields[field] = append(body.Fields[field], info.Message)
			}
		}
	}

	c.AbortWithStatusJSON(StatusFor(err), body)
}
