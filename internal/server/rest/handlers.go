package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/linksphere/internal/common"
	"github.com/dmitrijs2005/linksphere/internal/logging"
	"github.com/dmitrijs2005/linksphere/internal/server/auth"
	"github.com/dmitrijs2005/linksphere/internal/server/models"
	"github.com/dmitrijs2005/linksphere/internal/server/services"
)

const maxBodyBytes = 1 << 16

// AuthAPI is the account lifecycle as the HTTP layer sees it.
// services.AuthService implements it.
type AuthAPI interface {
	Register(ctx context.Context, req services.RegisterRequest) (*services.RegisterResult, error)
	VerifyEmail(ctx context.Context, email, code string) error
	ResendOTP(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, accountID uuid.UUID) (*models.PublicAccount, error)
	AdminResetOTP(ctx context.Context, email, secret string) error
	SendAttempts(ctx context.Context, email string) (int64, error)
}

type Handler struct {
	auth AuthAPI
	log  logging.Logger
}

func NewHandler(a AuthAPI, log logging.Logger) *Handler {
	return &Handler{auth: a, log: log.With("module", "rest")}
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"otp"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type registerResponse struct {
	User       *models.PublicAccount `json:"user"`
	OTPPending bool                  `json:"otp_pending"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}

	status := http.StatusCreated
	message := "Registration initiated. Please check your email for verification code."
	if !res.Created {
		status = http.StatusOK
		message = "Account is awaiting verification. A new code has been sent."
	}
	writeOK(w, status, message, registerResponse{User: res.Account, OTPPending: res.OTPPending})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		h.fail(w, r, "verify", err)
		return
	}
	writeOK(w, http.StatusOK, "Email verified successfully. You can now log in.", nil)
}

func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.ResendOTP(r.Context(), req.Email); err != nil {
		h.fail(w, r, "resend otp", err)
		return
	}
	writeOK(w, http.StatusOK, "Verification code resent. Please check your email.", nil)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}
	writeOK(w, http.StatusOK, "Login successful", res)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, "refresh", err)
		return
	}
	writeOK(w, http.StatusOK, "Token refreshed", pair)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, r, "logout", err)
		return
	}
	writeOK(w, http.StatusOK, "Logged out", nil)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrUnauthorized)
		return
	}

	account, err := h.auth.Me(r.Context(), id.AccountID)
	if err != nil {
		h.fail(w, r, "me", err)
		return
	}
	writeOK(w, http.StatusOK, "", account)
}

func (h *Handler) AdminResetOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.AdminResetOTP(r.Context(), req.Email, r.Header.Get(common.AdminSecretHeaderName)); err != nil {
		h.fail(w, r, "admin reset", err)
		return
	}
	writeOK(w, http.StatusOK, "Verification attempts reset", nil)
}

func (h *Handler) AdminAttempts(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")

	n, err := h.auth.SendAttempts(r.Context(), email)
	if err != nil {
		h.fail(w, r, "admin attempts", err)
		return
	}
	writeOK(w, http.StatusOK, "", map[string]any{"email": email, "attempts": n})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "ok", nil)
}

// decode reads a JSON body into dst and answers 400 itself when it cannot.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, common.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err)))
		return false
	}
	return true
}

// fail logs server-side detail for unexpected errors before writing the
// client response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	e := statusFor(err)
	if e.status >= http.StatusInternalServerError {
		h.log.Error(r.Context(), op+" failed", "error", err)
	} else if !errors.Is(err, common.ErrValidation) {
		h.log.Debug(r.Context(), op+" rejected", "error", err)
	}
	writeError(w, err)
}
