// Package appcontext provides utility functions for working with context in the application.
package appcontext

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// String returns the string representation of the context key.
func (c contextKey) String() string {
	return string(c)
}

// ContextRequestID represents the context key for the request id.
var (
	ContextRequestID = contextKey("requestID")
)

// WithRequestID returns a new context with the provided request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextRequestID, id)
}

// GetRequestID retrieves the request id from the context.
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextRequestID).(string)
	return id, ok && id != ""
}

// EnsureRequestID returns ctx carrying a request id, generating one when absent.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id, ok := GetRequestID(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}
