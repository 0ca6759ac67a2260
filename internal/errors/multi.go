package errors

import (
	"fmt"
	"sort"
	"strings"
)

type MultiErrors struct {
	Errors map[string][]ErrorInfo
}

type ErrorInfo struct {
	Message  string
	RawError error
}

func NewMultiErrors() *MultiErrors {
	return &MultiErrors{
		Errors: make(map[string][]ErrorInfo),
	}
}

func (e *MultiErrors) Add(key, message string, err error) {
	e.Errors[key] = append(e.Errors[key], ErrorInfo{
		Message:  message,
		RawError: err,
	})
}

func (e *MultiErrors) AddConfig(err *ConfigError) {
	e.Add(err.Field, err.Message, err)
}

func (e *MultiErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrorOrNil keeps callers from returning a typed nil.
func (e *MultiErrors) ErrorOrNil() error {
	if e == nil || !e.HasErrors() {
		return nil
	}
	return e
}

func (e *MultiErrors) Error() string {
	keys := make([]string, 0, len(e.Errors))
	for k := range e.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, field := range keys {
		for _, err := range e.Errors[field] {
			parts = append(parts, fmt.Sprintf("%s: %s", field, err.Message))
		}
	}
	return strings.Join(parts, " | ")
}

func (e *MultiErrors) Is(target error) bool {
	for _, infos := range e.Errors {
		for _, info := range infos {
			if info.RawError != nil {
				if t, ok := info.RawError.(interface{ Is(error) bool }); ok && t.Is(target) {
					return true
				}
			}
		}
	}
	return false
}
