package utils

import (
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
)

func ExtractDomainFromEmail(email string) string {
	if email == "" {
		return ""
	}

	email = strings.TrimSpace(email)

	// Handle "Name <email@domain.com>"
	if strings.Contains(email, "<") && strings.Contains(email, ">") {
		startIdx := strings.LastIndex(email, "<") + 1
		endIdx := strings.LastIndex(email, ">")
		if startIdx > 0 && endIdx > startIdx {
			email = email[startIdx:endIdx]
		}
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}

	return strings.ToLower(strings.TrimSpace(parts[1]))
}

// IsValidEmail runs the syntax check and returns the cleaned address.
func IsValidEmail(email string) (string, bool) {
	result := mailvalidate.ValidateEmailSyntax(strings.TrimSpace(email))
	if !result.IsValid {
		return "", false
	}
	return result.CleanEmail, true
}
