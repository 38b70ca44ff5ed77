package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/linksphere/internal/common"
)

// envelope is the body shape of every API response.
type envelope struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// apiError is what a client learns about a failure.
type apiError struct {
	status  int
	code    string
	message string
}

// statusFor maps an error kind to its HTTP rendering. Detail attached to err
// never reaches the client.
func statusFor(err error) apiError {
	switch {
	case errors.Is(err, common.ErrValidation):
		return apiError{http.StatusBadRequest, "VALIDATION_ERROR", "Validation error"}
	case errors.Is(err, common.ErrConflict):
		return apiError{http.StatusConflict, "USER_EXISTS", "Email or username already exists"}
	case errors.Is(err, common.ErrInvalidCredentials):
		return apiError{http.StatusUnauthorized, "AUTHENTICATION_ERROR", "Invalid credentials"}
	case errors.Is(err, common.ErrEmailNotVerified):
		return apiError{http.StatusUnauthorized, "EMAIL_NOT_VERIFIED", "Email not verified. Please verify your email before logging in"}
	case errors.Is(err, common.ErrAccountNotActive):
		return apiError{http.StatusForbidden, "ACCOUNT_INACTIVE", "Account is not active"}
	case errors.Is(err, common.ErrInvalidOrExpiredCode):
		return apiError{http.StatusBadRequest, "INVALID_OTP", "Invalid or expired verification code"}
	case errors.Is(err, common.ErrNotFound):
		return apiError{http.StatusNotFound, "NOT_FOUND", "Not found"}
	case errors.Is(err, common.ErrInvalidState):
		return apiError{http.StatusBadRequest, "ALREADY_VERIFIED", "Account is already verified. Please login instead."}
	case errors.Is(err, common.ErrRateLimited):
		return apiError{http.StatusTooManyRequests, "RATE_LIMITED", "Too many verification codes requested"}
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return apiError{http.StatusUnauthorized, "REFRESH_TOKEN_EXPIRED", "Refresh token expired"}
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return apiError{http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized"}
	case errors.Is(err, common.ErrDependency):
		return apiError{http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable"}
	default:
		return apiError{http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"}
	}
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	body.Timestamp = time.Now().UTC()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	e := statusFor(err)
	body := envelope{Message: e.message, Code: e.code}

	var verr *common.ValidationError
	if errors.As(err, &verr) {
		body.Data = map[string]any{"fields": verr.Fields}
	}
	writeJSON(w, e.status, body)
}
