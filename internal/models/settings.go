package models

import (
	"time"

	apperrors "github.com/customeros/codewatch/internal/errors"
)

const (
	MinPollIntervalSeconds = 1
	MaxPollIntervalSeconds = 3600
	MaxDaysBack            = 365
)

// Settings are the runtime-tunable monitor parameters.
type Settings struct {
	PollIntervalSeconds int  `json:"pollIntervalSeconds" yaml:"poll_interval_seconds"`
	DaysBack            int  `json:"daysBack" yaml:"days_back"`
	AutoMarkRead        bool `json:"autoMarkRead" yaml:"auto_mark_read"`
	RecentMinutes       int  `json:"recentMinutes" yaml:"recent_minutes"`
}

func DefaultSettings() Settings {
	return Settings{
		PollIntervalSeconds: 30,
		DaysBack:            7,
		AutoMarkRead:        false,
		RecentMinutes:       15,
	}
}

func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// Validate checks every field and reports all problems at once.
func (s Settings) Validate() error {
	errs := apperrors.NewMultiErrors()
	if s.PollIntervalSeconds < MinPollIntervalSeconds || s.PollIntervalSeconds > MaxPollIntervalSeconds {
		errs.AddConfig(apperrors.NewConfigError("pollIntervalSeconds", "must be between 1 and 3600"))
	}
	if s.DaysBack < 1 || s.DaysBack > MaxDaysBack {
		errs.AddConfig(apperrors.NewConfigError("daysBack", "must be between 1 and 365"))
	}
	if s.RecentMinutes < 1 {
		errs.AddConfig(apperrors.NewConfigError("recentMinutes", "must be positive"))
	}
	return errs.ErrorOrNil()
}

// SettingsUpdate carries a partial update; nil fields keep their current value.
type SettingsUpdate struct {
	PollIntervalSeconds *int  `json:"pollIntervalSeconds"`
	DaysBack            *int  `json:"daysBack"`
	AutoMarkRead        *bool `json:"autoMarkRead"`
	RecentMinutes       *int  `json:"recentMinutes"`
}

func (u SettingsUpdate) ApplyTo(s Settings) Settings {
	if u.PollIntervalSeconds != nil {
		s.PollIntervalSeconds = *u.PollIntervalSeconds
	}
	if u.DaysBack != nil {
		s.DaysBack = *u.DaysBack
	}
	if u.AutoMarkRead != nil {
		s.AutoMarkRead = *u.AutoMarkRead
	}
	if u.RecentMinutes != nil {
		s.RecentMinutes = *u.RecentMinutes
	}
	return s
}
