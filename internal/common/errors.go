// Package common defines shared constants, sentinel errors and small helpers
// used across the server and client layers of LinkSphere. Callers should use
// errors.Is to match the sentinel values.
//
// Sentinels describe the kind of a failure only. Free-text detail is attached
// by wrapping (fmt.Errorf("%w: ...") or errors.Join) and is meant for
// server-side logs, never for clients.
package common

import (
	"errors"
	"sort"
	"strings"
)

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Input and state-machine errors.
	ErrValidation           = errors.New("validation error")
	ErrConflict             = errors.New("email or username already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailNotVerified     = errors.New("email not verified")
	ErrAccountNotActive     = errors.New("account is not active")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired verification code")
	ErrInvalidState         = errors.New("account is not in pending verification state")
	ErrRateLimited          = errors.New("too many verification attempts")

	// Auth errors.
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidToken        = errors.New("invalid token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Infrastructure errors.
	ErrDependency = errors.New("dependency failure")
	ErrInternal   = errors.New("internal error")
)

// ValidationError carries per-field messages for rejected input. It matches
// ErrValidation with errors.Is. Unlike other errors its messages are safe to
// show to the client.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
