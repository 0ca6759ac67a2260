package models

import "time"

type SessionState string

const (
	SessionDisconnected SessionState = "disconnected"
	SessionConnected    SessionState = "connected"
	SessionAuthFailed   SessionState = "auth_failed"
)

type SessionStatus struct {
	Account     string       `json:"account"`
	State       SessionState `json:"state"`
	LastError   string       `json:"lastError,omitempty"`
	LastChecked time.Time    `json:"lastChecked"`
	Failures    int          `json:"failures"`
}
