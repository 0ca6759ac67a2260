package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// AuthError means the provider rejected the account's credentials.
// The account is skipped until the registry retries it on a later cycle.
type AuthError struct {
	Account string
	Err     error
}

func NewAuthError(account string, err error) *AuthError {
	return &AuthError{Account: account, Err: err}
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected for %s: %v", e.Account, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// NetworkError covers dial failures, dropped connections and any other
// protocol-level failure that leaves the session unusable.
type NetworkError struct {
	Account string
	Op      string
	Err     error
}

func NewNetworkError(account, op string, err error) *NetworkError {
	return &NetworkError{Account: account, Op: op, Err: err}
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Account, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ParseError is scoped to a single message. It is logged and the message skipped.
type ParseError struct {
	Account   string
	MessageID string
	Err       error
}

func NewParseError(account, messageID string, err error) *ParseError {
	return &ParseError{Account: account, MessageID: messageID, Err: err}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("message %s for %s could not be parsed: %v", e.MessageID, e.Account, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

type ConfigError struct {
	Field   string
	Message string
}

func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// Classify maps a raw protocol error onto the session taxonomy. Errors that
// are already classified pass through untouched.
func Classify(account, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrNetwork) || errors.Is(err, ErrParse) ||
		errors.Is(err, ErrSearchFallbackExhausted) || errors.Is(err, ErrConfig) {
		return err
	}
	return NewNetworkError(account, op, err)
}

// IsConnectionError reports whether err looks like a broken transport rather
// than a command the server refused.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetwork) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "reset by peer") ||
		strings.Contains(errStr, "use of closed network") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "i/o")
}
