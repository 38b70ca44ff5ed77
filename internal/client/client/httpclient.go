package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/linksphere/internal/common"
)

// Account is the public account view returned by the server.
type Account struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	Gender     string     `json:"gender"`
	Status     string     `json:"status"`
	IsVerified bool       `json:"is_verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type RegisterInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Gender   string `json:"gender"`
}

type RegisterOutput struct {
	User       Account `json:"user"`
	OTPPending bool    `json:"otp_pending"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type loginOutput struct {
	tokenPair
	User Account `json:"user"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// HTTPClient talks to the LinkSphere HTTP API. It keeps the current token
// pair and transparently refreshes an expired access token once per call.
type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Register(ctx context.Context, in RegisterInput) (*RegisterOutput, error) {
	var out RegisterOutput
	if err := c.call(ctx, http.MethodPost, "/api/auth/register", in, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Verify(ctx context.Context, email, code string) error {
	return c.call(ctx, http.MethodPost, "/api/auth/verify", map[string]string{"email": email, "otp": code}, nil, false)
}

func (c *HTTPClient) ResendOTP(ctx context.Context, email string) error {
	return c.call(ctx, http.MethodPost, "/api/auth/resend-otp", map[string]string{"email": email}, nil, false)
}

// Login stores the returned token pair for later calls.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (*Account, error) {
	var out loginOutput
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, &out, false); err != nil {
		return nil, err
	}
	c.setTokens(out.tokenPair)
	return &out.User, nil
}

// Refresh rotates the stored refresh token.
func (c *HTTPClient) Refresh(ctx context.Context) error {
	_, refresh := c.tokens()
	if refresh == "" {
		return ErrUnauthorized
	}

	var out tokenPair
	if err := c.call(ctx, http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": refresh}, &out, false); err != nil {
		return err
	}
	c.setTokens(out)
	return nil
}

func (c *HTTPClient) Me(ctx context.Context) (*Account, error) {
	var out Account
	if err := c.call(ctx, http.MethodGet, "/api/me", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the refresh token on the server and forgets both tokens.
func (c *HTTPClient) Logout(ctx context.Context) error {
	_, refresh := c.tokens()
	defer c.setTokens(tokenPair{})

	if refresh == "" {
		return nil
	}
	return c.call(ctx, http.MethodPost, "/api/auth/logout", map[string]string{"refresh_token": refresh}, nil, false)
}

// Ping checks that the server answers its health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil, false)
}

func (c *HTTPClient) LoggedIn() bool {
	access, _ := c.tokens()
	return access != ""
}

func (c *HTTPClient) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *HTTPClient) setTokens(p tokenPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken, c.refreshToken = p.AccessToken, p.RefreshToken
}

// call performs one API request. Authenticated calls that come back 401 are
// retried once after a successful token refresh.
func (c *HTTPClient) call(ctx context.Context, method, path string, in, out any, authenticated bool) error {
	err := c.do(ctx, method, path, in, out, authenticated)
	if !authenticated || !errors.Is(err, ErrUnauthorized) {
		return err
	}

	if rerr := c.Refresh(ctx); rerr != nil {
		return err
	}
	return c.do(ctx, method, path, in, out, authenticated)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any, authenticated bool) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		access, _ := c.tokens()
		if access == "" {
			return ErrUnauthorized
		}
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
		var detail struct {
			Fields map[string]string `json:"fields"`
		}
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &detail) == nil {
			apiErr.Fields = detail.Fields
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
