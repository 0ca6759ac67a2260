package errors

import "github.com/pkg/errors"

var (
	// session errors
	ErrAuth                    = errors.New("authentication rejected")
	ErrNetwork                 = errors.New("network failure")
	ErrNotConnected            = errors.New("session not connected")
	ErrSearchFallbackExhausted = errors.New("all search strategies failed")
	ErrParse                   = errors.New("message could not be parsed")

	// configuration errors
	ErrConfig     = errors.New("invalid configuration")
	ErrNoAccounts = errors.New("no accounts configured")

	// monitor errors
	ErrMonitorActive   = errors.New("monitoring already active")
	ErrMonitorInactive = errors.New("monitoring not active")
	ErrResyncFailed    = errors.New("full resync failed for every account")
)
