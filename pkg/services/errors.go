package services

import (
	"errors"
	"strings"
)

var (
	// ErrOffline is reported internally when syncing with the server is disabled.
	ErrOffline = errors.New("sync with server disabled")
	// ErrNoData means neither the remote resource nor the local cache could be read.
	ErrNoData = errors.New("no data available")
)

// FieldError describes one invalid or missing field.
type FieldError struct {
	Key     string
	Message string
}

// ValidationError is returned before any network call when input is rejected.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

// Messages returns the per-field messages keyed by field.
func (e *ValidationError) Messages() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Key] = f.Message
	}
	return out
}
