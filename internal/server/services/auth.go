// Package services holds the server-side business logic. AuthService drives
// the account lifecycle: registration, email verification, login and the
// refresh-token rotation that follows.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/linksphere/internal/common"
	"github.com/dmitrijs2005/linksphere/internal/dbx"
	"github.com/dmitrijs2005/linksphere/internal/logging"
	"github.com/dmitrijs2005/linksphere/internal/server/config"
	"github.com/dmitrijs2005/linksphere/internal/server/metrics"
	"github.com/dmitrijs2005/linksphere/internal/server/models"
	"github.com/dmitrijs2005/linksphere/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const refreshTokenBytes = 32

// OTPFlow is the verification side of the lifecycle.
type OTPFlow interface {
	InitiateOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) bool
	AdminReset(ctx context.Context, email, secret string) error
	Attempts(ctx context.Context, email string) (int64, error)
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
}

type TokenIssuer interface {
	Issue(account *models.Account) (string, error)
}

// Background runs work detached from the request and reports its result.
type Background interface {
	Go(name string, timeout time.Duration, fn func(ctx context.Context) error) <-chan error
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type LoginResult struct {
	TokenPair
	Account *models.PublicAccount `json:"user"`
}

type RegisterResult struct {
	Account *models.PublicAccount
	// Created is false when an existing pending account got a new code.
	Created bool
	// OTPPending is true when the code was still on its way when the grace
	// period ran out.
	OTPPending bool
}

type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      PasswordHasher
	issuer      TokenIssuer
	otp         OTPFlow
	background  Background
	log         logging.Logger
	metrics     *metrics.Metrics

	refreshTokenValidityDuration time.Duration
	registerGrace                time.Duration
	otpBudget                    time.Duration

	// dummyHash keeps login timing flat for unknown emails.
	dummyHash string
	now       func() time.Time
}

func NewAuthService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	cfg *config.Config,
	hasher PasswordHasher,
	issuer TokenIssuer,
	otp OTPFlow,
	background Background,
	log logging.Logger,
	mtr *metrics.Metrics,
) (*AuthService, error) {
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	return &AuthService{
		db:                           db,
		repomanager:                  m,
		hasher:                       hasher,
		issuer:                       issuer,
		otp:                          otp,
		background:                   background,
		log:                          log.With("module", "auth"),
		metrics:                      mtr,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		registerGrace:                cfg.RegisterGrace,
		otpBudget:                    otpBudget(cfg),
		dummyHash:                    dummy,
		now:                          time.Now,
	}, nil
}

// otpBudget bounds a background InitiateOTP: every attempt of both calls
// plus the linear backoff between them.
func otpBudget(cfg *config.Config) time.Duration {
	n := time.Duration(cfg.RetryAttempts)
	if n < 1 {
		n = 1
	}
	longest := max(cfg.MailTimeout, cfg.CacheTimeout)
	return cfg.CacheTimeout + n*longest + n*n*cfg.RetryBaseDelay
}

// Register creates a pending account and sends its first code. A pending
// account with the same email gets a fresh code instead.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (res *RegisterResult, err error) {
	defer func() { s.metrics.AuthEvent("register", err) }()

	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}

	repo := s.repomanager.Accounts(s.db)

	existing, err := repo.GetByEmailOrUsername(ctx, req.Email, req.Username)
	switch {
	case err == nil:
		if existing.Status != models.StatusPendingVerification {
			return nil, common.ErrConflict
		}
		// A username held by someone else's pending account is taken; the
		// resend path only serves the address that asked.
		if existing.Email != req.Email {
			return nil, common.ErrConflict
		}
		pending, err := s.startOTP(ctx, existing.Email)
		if err != nil {
			return nil, err
		}
		s.log.Info(ctx, "registration resent code", "account_id", existing.ID)
		return &RegisterResult{Account: existing.Public(), Created: false, OTPPending: pending}, nil
	case !errors.Is(err, common.ErrNotFound):
		return nil, errors.Join(common.ErrDependency, err)
	}

	gender, err := models.ParseGender(req.Gender)
	if err != nil {
		return nil, common.NewValidationError("gender", err.Error())
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	account, err := repo.Create(ctx, &models.Account{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		Gender:       gender,
		Status:       models.StatusPendingVerification,
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			return nil, common.ErrConflict
		}
		return nil, errors.Join(common.ErrDependency, err)
	}

	s.log.Info(ctx, "account registered", "account_id", account.ID)

	pending, err := s.startOTP(ctx, account.Email)
	if err != nil {
		return nil, err
	}

	return &RegisterResult{Account: account.Public(), Created: true, OTPPending: pending}, nil
}

// startOTP runs InitiateOTP in the background and waits up to registerGrace
// for it, so quick failures such as the send cap still reach the caller.
func (s *AuthService) startOTP(ctx context.Context, email string) (pending bool, err error) {
	done := s.background.Go("initiate otp", s.otpBudget, func(ctx context.Context) error {
		return s.otp.InitiateOTP(ctx, email)
	})

	timer := time.NewTimer(s.registerGrace)
	defer timer.Stop()

	select {
	case err := <-done:
		return false, err
	case <-timer.C:
		return true, nil
	case <-ctx.Done():
		return true, nil
	}
}

// VerifyEmail checks code and activates the account in one conditional
// update. A second verification for the same email yields ErrNotFound.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) (err error) {
	defer func() { s.metrics.AuthEvent("verify", err) }()

	email = normalizeEmail(email)
	if err := validateVerification(email, code); err != nil {
		return err
	}

	repo := s.repomanager.Accounts(s.db)

	if !s.otp.VerifyOTP(ctx, email, code) {
		// A consumed code on an already active account means there is
		// nothing left to verify.
		account, err := repo.GetByEmail(ctx, email)
		if errors.Is(err, common.ErrNotFound) || (err == nil && account.IsVerified) {
			return common.ErrNotFound
		}
		return common.ErrInvalidOrExpiredCode
	}

	if err := repo.MarkVerified(ctx, email, s.now()); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return errors.Join(common.ErrDependency, err)
	}

	s.log.Info(ctx, "email verified", "email", email)
	return nil
}

func (s *AuthService) ResendOTP(ctx context.Context, email string) (err error) {
	defer func() { s.metrics.AuthEvent("resend", err) }()

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	account, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return errors.Join(common.ErrDependency, err)
	}
	if account.Status != models.StatusPendingVerification {
		return common.ErrInvalidState
	}

	return s.otp.InitiateOTP(ctx, email)
}

// Login never tells an unknown email apart from a wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string) (res *LoginResult, err error) {
	defer func() { s.metrics.AuthEvent("login", err) }()

	email = normalizeEmail(email)

	account, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return nil, errors.Join(common.ErrDependency, err)
		}
		_, _ = s.hasher.Verify(password, s.dummyHash)
		return nil, common.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrInvalidCredentials
	}

	if !account.IsVerified {
		return nil, common.ErrEmailNotVerified
	}
	if account.Status != models.StatusActive {
		return nil, common.ErrAccountNotActive
	}

	pair, err := s.issueTokenPair(ctx, account, s.db)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "login", "account_id", account.ID)
	return &LoginResult{TokenPair: *pair, Account: account.Public()}, nil
}

// Refresh rotates a refresh token. The old row is consumed and the new pair
// minted in one transaction, so a token rotates at most once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	defer func() { s.metrics.AuthEvent("refresh", err) }()

	if refreshToken == "" {
		return nil, common.ErrUnauthorized
	}

	var expired bool
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		token, err := s.repomanager.RefreshTokens(tx).Consume(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrUnauthorized
			}
			return errors.Join(common.ErrDependency, err)
		}

		// Commit the delete; the caller still gets the expiry error.
		if token.Expired(s.now()) {
			expired = true
			return nil
		}

		account, err := s.repomanager.Accounts(tx).GetByID(ctx, token.AccountID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrUnauthorized
			}
			return errors.Join(common.ErrDependency, err)
		}
		if account.Status != models.StatusActive {
			return common.ErrAccountNotActive
		}

		pair, err = s.issueTokenPair(ctx, account, tx)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrUnauthorized),
			errors.Is(err, common.ErrAccountNotActive),
			errors.Is(err, common.ErrDependency),
			errors.Is(err, common.ErrInternal):
			return nil, err
		}
		return nil, errors.Join(common.ErrDependency, err)
	}
	if expired {
		return nil, common.ErrRefreshTokenExpired
	}

	return pair, nil
}

// Logout drops the refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (err error) {
	defer func() { s.metrics.AuthEvent("logout", err) }()

	if refreshToken == "" {
		return nil
	}
	if err := s.repomanager.RefreshTokens(s.db).Delete(ctx, refreshToken); err != nil {
		return errors.Join(common.ErrDependency, err)
	}
	return nil
}

func (s *AuthService) Me(ctx context.Context, accountID uuid.UUID) (*models.PublicAccount, error) {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, errors.Join(common.ErrDependency, err)
	}
	return account.Public(), nil
}

func (s *AuthService) AdminResetOTP(ctx context.Context, email, secret string) (err error) {
	defer func() { s.metrics.AuthEvent("admin_reset", err) }()

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	return s.otp.AdminReset(ctx, email, secret)
}

// SendAttempts reports the OTP send counter for email.
func (s *AuthService) SendAttempts(ctx context.Context, email string) (int64, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return 0, err
	}
	return s.otp.Attempts(ctx, email)
}

// SweepExpiredRefreshTokens removes refresh tokens that are past expiry.
func (s *AuthService) SweepExpiredRefreshTokens(ctx context.Context) (int64, error) {
	n, err := s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, errors.Join(common.ErrDependency, err)
	}
	s.metrics.TokensSwept(n)
	return n, nil
}

func (s *AuthService) issueTokenPair(ctx context.Context, account *models.Account, db dbx.DBTX) (*TokenPair, error) {
	access, err := s.issuer.Issue(account)
	if err != nil {
		return nil, err
	}

	refresh, err := common.MakeRandURLString(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: refresh token: %v", common.ErrInternal, err)
	}

	expiresAt := s.now().Add(s.refreshTokenValidityDuration)
	if err := s.repomanager.RefreshTokens(db).Create(ctx, account.ID, refresh, expiresAt); err != nil {
		return nil, errors.Join(common.ErrDependency, err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}
