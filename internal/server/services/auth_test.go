package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/linksphere/internal/common"
	"github.com/dmitrijs2005/linksphere/internal/server/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerReq() RegisterRequest {
	return RegisterRequest{Email: "A@X.com ", Username: "alice", Password: strongPass, Gender: "Other"}
}

func TestRegister_CreatesPendingAccount(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.svc.Register(context.Background(), registerReq())
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.False(t, res.OTPPending)
	assert.Equal(t, "a@x.com", res.Account.Email)
	assert.Equal(t, models.StatusPendingVerification, res.Account.Status)
	assert.False(t, res.Account.IsVerified)
	assert.Equal(t, []string{"a@x.com"}, h.otp.Initiated())

	stored, err := h.accounts.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, strongPass, stored.PasswordHash)
	assert.Equal(t, models.GenderOther, stored.Gender)
	assert.Zero(t, stored.VerificationAttempts)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(*RegisterRequest)
	}{
		{"bad email", "email", func(r *RegisterRequest) { r.Email = "not-an-email" }},
		{"missing email", "email", func(r *RegisterRequest) { r.Email = "" }},
		{"short username", "username", func(r *RegisterRequest) { r.Username = "al" }},
		{"username with dash", "username", func(r *RegisterRequest) { r.Username = "al-ice" }},
		{"short password", "password", func(r *RegisterRequest) { r.Password = "Ab1!" }},
		{"guessable password", "password", func(r *RegisterRequest) { r.Password = "password123" }},
		{"password is the username", "password", func(r *RegisterRequest) { r.Username = "Zq8mL2vT9xRw"; r.Password = "Zq8mL2vT9xRw" }},
		{"unknown gender", "gender", func(r *RegisterRequest) { r.Gender = "robot" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			req := registerReq()
			tt.edit(&req)

			_, err := h.svc.Register(context.Background(), req)
			require.ErrorIs(t, err, common.ErrValidation)

			var verr *common.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
			assert.Empty(t, h.otp.Initiated(), "invalid input must not reach the OTP flow")
		})
	}
}

func TestRegister_ExistingActiveIsConflict(t *testing.T) {
	h := newHarness(t, nil)
	h.accounts.put(t, "a@x.com", "someone", strongPass, models.StatusActive, true)

	_, err := h.svc.Register(context.Background(), registerReq())
	assert.ErrorIs(t, err, common.ErrConflict)

	h2 := newHarness(t, nil)
	h2.accounts.put(t, "b@x.com", "alice", strongPass, models.StatusSuspended, true)

	_, err = h2.svc.Register(context.Background(), registerReq())
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestRegister_ExistingPendingResends(t *testing.T) {
	h := newHarness(t, nil)
	existing := h.accounts.put(t, "a@x.com", "alice", strongPass, models.StatusPendingVerification, false)

	res, err := h.svc.Register(context.Background(), registerReq())
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Equal(t, existing.ID, res.Account.ID)
	assert.Equal(t, []string{"a@x.com"}, h.otp.Initiated())
}

func TestRegister_PendingUsernameOfAnotherEmailIsConflict(t *testing.T) {
	h := newHarness(t, nil)
	h.accounts.put(t, "b@x.com", "alice", strongPass, models.StatusPendingVerification, false)

	res, err := h.svc.Register(context.Background(), registerReq())
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Nil(t, res, "the other account must not be echoed back")
	assert.Empty(t, h.otp.Initiated(), "no code goes to b@x.com")
}

func TestRegister_RateLimitedWithinGrace(t *testing.T) {
	otp := newFakeOTP()
	otp.initErr = common.ErrRateLimited
	h := newHarness(t, otp)

	_, err := h.svc.Register(context.Background(), registerReq())
	assert.ErrorIs(t, err, common.ErrRateLimited)
}

func TestRegister_SlowOTPIsReportedPending(t *testing.T) {
	otp := newFakeOTP()
	otp.delay = 300 * time.Millisecond
	h := newHarness(t, otp)
	h.svc.registerGrace = 10 * time.Millisecond

	res, err := h.svc.Register(context.Background(), registerReq())
	require.NoError(t, err)
	assert.True(t, res.OTPPending)
	assert.True(t, res.Created)

	require.Eventually(t, func() bool { return len(otp.Initiated()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRegister_StoreFailureIsDependency(t *testing.T) {
	h := newHarness(t, nil)
	h.accounts.getErr = errors.New("connection reset")

	_, err := h.svc.Register(context.Background(), registerReq())
	assert.ErrorIs(t, err, common.ErrDependency)
}

func TestVerifyEmail(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.accounts.put(t, "a@x.com", "alice", strongPass, models.StatusPendingVerification, false)
	h.otp.codes["a@x.com"] = "012345"

	assert.ErrorIs(t, h.svc.VerifyEmail(ctx, "a@x.com", "543210"), common.ErrInvalidOrExpiredCode)

	require.NoError(t, h.svc.VerifyEmail(ctx, "A@x.com", "012345"))

	a, err := h.accounts.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, a.IsVerified)
	assert.Equal(t, models.StatusActive, a.Status, "activation sets both fields together")
	require.NotNil(t, a.VerifiedAt)
	assert.Equal(t, 1, a.VerificationAttempts)

	assert.ErrorIs(t, h.svc.VerifyEmail(ctx, "a@x.com", "012345"), common.ErrNotFound)

	delete(h.otp.codes, "a@x.com")
	assert.ErrorIs(t, h.svc.VerifyEmail(ctx, "a@x.com", "012345"), common.ErrNotFound)
}

func TestVerifyEmail_UnknownAccount(t *testing.T) {
	h := newHarness(t, nil)

	assert.ErrorIs(t, h.svc.VerifyEmail(context.Background(), "ghost@x.com", "123456"), common.ErrNotFound)

	h.otp.codes["ghost@x.com"] = "123456"
	assert.ErrorIs(t, h.svc.VerifyEmail(context.Background(), "ghost@x.com", "123456"), common.ErrNotFound)
}

func TestVerifyEmail_MalformedInput(t *testing.T) {
	h := newHarness(t, nil)

	assert.ErrorIs(t, h.svc.VerifyEmail(context.Background(), "a@x.com", "12345"), common.ErrValidation)
	assert.ErrorIs(t, h.svc.VerifyEmail(context.Background(), "a@x.com", "12345a"), common.ErrValidation)
	assert.ErrorIs(t, h.svc.VerifyEmail(context.Background(), "nope", "123456"), common.ErrValidation)
}

func TestResendOTP(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.ResendOTP(ctx, "ghost@x.com"), common.ErrNotFound)

	h.accounts.put(t, "active@x.com", "active", strongPass, models.StatusActive, true)
	assert.ErrorIs(t, h.svc.ResendOTP(ctx, "active@x.com"), common.ErrInvalidState)

	h.accounts.put(t, "a@x.com", "alice", strongPass, models.StatusPendingVerification, false)
	require.NoError(t, h.svc.ResendOTP(ctx, "a@x.com"))
	assert.Equal(t, []string{"a@x.com"}, h.otp.Initiated())

	h.otp.initErr = common.ErrRateLimited
	assert.ErrorIs(t, h.svc.ResendOTP(ctx, "a@x.com"), common.ErrRateLimited)
}

func TestLogin_Failures(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.accounts.put(t, "pending@x.com", "pending", strongPass, models.StatusPendingVerification, false)
	h.accounts.put(t, "suspended@x.com", "suspended", strongPass, models.StatusSuspended, true)
	h.accounts.put(t, "inactive@x.com", "inactive", strongPass, models.StatusInactive, true)
	h.accounts.put(t, "a@x.com", "alice", strongPass, models.StatusActive, true)

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"unknown email", "ghost@x.com", strongPass, common.ErrInvalidCredentials},
		{"wrong password", "a@x.com", "wrong-password", common.ErrInvalidCredentials},
		{"not verified", "pending@x.com", strongPass, common.ErrEmailNotVerified},
		{"suspended", "suspended@x.com", strongPass, common.ErrAccountNotActive},
		{"inactive", "inactive@x.com", strongPass, common.ErrAccountNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Login(ctx, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLogin_IssuesTokens(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.accounts.put(t, "a@x.com", "alice", strongPass, models.StatusActive, true)

	res, err := h.svc.Login(ctx, " A@X.COM", strongPass)
	require.NoError(t, err)

	claims, err := h.issuer.Decode(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, a.ID.String(), claims.Subject)
	assert.Equal(t, "bearer", res.TokenType)
	assert.Equal(t, a.ID, res.Account.ID)

	rt, ok := h.tokens.get(res.RefreshToken)
	require.True(t, ok)
	assert.Equal(t, a.ID, rt.AccountID)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), rt.ExpiresAt, time.Minute)
	assert.Len(t, res.RefreshToken, 43, "32 random bytes, unpadded base64url")
}

func TestLogin_RefreshPersistFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.accounts.put(t, "a@x.com", "alice", strongPass, models.StatusActive, true)
	h.tokens.createErr = errors.New("disk full")

	_, err := h.svc.Login(context.Background(), "a@x.com", strongPass)
	assert.ErrorIs(t, err, common.ErrDependency)
}

func TestRefresh_Rotates(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.accounts.put(t, "a@x.com", "alice", strongPass, models.StatusActive, true)
	require.NoError(t, h.tokens.Create(ctx, a.ID, "old-token", time.Now().Add(time.Hour)))

	h.mock.ExpectBegin()
	h.mock.ExpectCommit()

	pair, err := h.svc.Refresh(ctx, "old-token")
	require.NoError(t, err)
	require.NoError(t, h.mock.ExpectationsWereMet())

	assert.False(t, h.tokens.has("old-token"))
	assert.True(t, h.tokens.has(pair.RefreshToken))
	assert.NotEqual(t, "old-token", pair.RefreshToken)

	h.mock.ExpectBegin()
	h.mock.ExpectRollback()
	_, err = h.svc.Refresh(ctx, "old-token")
	assert.ErrorIs(t, err, common.ErrUnauthorized, "rotated token is single use")
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestRefresh_Failures(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.accounts.put(t, "a@x.com", "alice", strongPass, models.StatusActive, true)
	s := h.accounts.put(t, "s@x.com", "sam", strongPass, models.StatusSuspended, true)

	_, err := h.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	h.mock.ExpectBegin()
	h.mock.ExpectRollback()
	_, err = h.svc.Refresh(ctx, "unknown")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	// The expired row is consumed and the delete committed.
	require.NoError(t, h.tokens.Create(ctx, a.ID, "expired", time.Now().Add(-time.Minute)))
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()
	_, err = h.svc.Refresh(ctx, "expired")
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
	assert.False(t, h.tokens.has("expired"))

	require.NoError(t, h.tokens.Create(ctx, s.ID, "suspended", time.Now().Add(time.Hour)))
	h.mock.ExpectBegin()
	h.mock.ExpectRollback()
	_, err = h.svc.Refresh(ctx, "suspended")
	assert.ErrorIs(t, err, common.ErrAccountNotActive)

	require.NoError(t, h.tokens.Create(ctx, uuid.New(), "orphan", time.Now().Add(time.Hour)))
	h.mock.ExpectBegin()
	h.mock.ExpectRollback()
	_, err = h.svc.Refresh(ctx, "orphan")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestRefresh_ConcurrentCallersRotateOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.accounts.put(t, "a@x.com", "alice", strongPass, models.StatusActive, true)
	require.NoError(t, h.tokens.Create(ctx, a.ID, "old-token", time.Now().Add(time.Hour)))

	// Both callers reach Consume before either one proceeds.
	var arrived sync.WaitGroup
	arrived.Add(2)
	h.tokens.consumeGate = func() {
		arrived.Done()
		arrived.Wait()
	}

	h.mock.MatchExpectationsInOrder(false)
	h.mock.ExpectBegin()
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()
	h.mock.ExpectRollback()

	type outcome struct {
		pair *TokenPair
		err  error
	}
	results := make(chan outcome, 2)
	for range 2 {
		go func() {
			pair, err := h.svc.Refresh(ctx, "old-token")
			results <- outcome{pair, err}
		}()
	}

	var rotated []string
	for range 2 {
		r := <-results
		if r.err != nil {
			assert.ErrorIs(t, r.err, common.ErrUnauthorized)
			continue
		}
		rotated = append(rotated, r.pair.RefreshToken)
	}

	require.Len(t, rotated, 1, "one refresh token must rotate exactly once")
	assert.True(t, h.tokens.has(rotated[0]))
	assert.False(t, h.tokens.has("old-token"))
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestRefresh_RollsBackOnFailure(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.accounts.put(t, "a@x.com", "alice", strongPass, models.StatusActive, true)
	require.NoError(t, h.tokens.Create(ctx, a.ID, "old-token", time.Now().Add(time.Hour)))
	h.tokens.createErr = errors.New("insert failed")

	h.mock.ExpectBegin()
	h.mock.ExpectRollback()

	_, err := h.svc.Refresh(ctx, "old-token")
	assert.ErrorIs(t, err, common.ErrDependency)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestLogout(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.tokens.Create(ctx, uuid.New(), "tok", time.Now().Add(time.Hour)))

	require.NoError(t, h.svc.Logout(ctx, "tok"))
	assert.False(t, h.tokens.has("tok"))
	require.NoError(t, h.svc.Logout(ctx, "tok"))
	require.NoError(t, h.svc.Logout(ctx, ""))
}

func TestMe(t *testing.T) {
	h := newHarness(t, nil)
	a := h.accounts.put(t, "a@x.com", "alice", strongPass, models.StatusActive, true)

	got, err := h.svc.Me(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = h.svc.Me(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAdminResetOTP(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.svc.AdminResetOTP(ctx, " A@x.com", "adminSecret"))
	assert.Equal(t, []string{"a@x.com"}, h.otp.resets)

	h.otp.resetErr = common.ErrUnauthorized
	assert.ErrorIs(t, h.svc.AdminResetOTP(ctx, "a@x.com", "bad"), common.ErrUnauthorized)

	assert.ErrorIs(t, h.svc.AdminResetOTP(ctx, "nope", "adminSecret"), common.ErrValidation)

	h.otp.attempts = 3
	n, err := h.svc.SendAttempts(ctx, "a@x.com")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestSweepExpiredRefreshTokens(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, h.tokens.Create(ctx, id, "live", time.Now().Add(time.Hour)))
	require.NoError(t, h.tokens.Create(ctx, id, "dead-1", time.Now().Add(-time.Hour)))
	require.NoError(t, h.tokens.Create(ctx, id, "dead-2", time.Now().Add(-time.Minute)))

	n, err := h.svc.SweepExpiredRefreshTokens(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.True(t, h.tokens.has("live"))
}

func TestOTPBudget(t *testing.T) {
	cfg := testServerConfig()
	cfg.RetryAttempts = 3
	cfg.CacheTimeout = time.Second
	cfg.MailTimeout = 10 * time.Second
	cfg.RetryBaseDelay = 100 * time.Millisecond

	assert.Equal(t, time.Second+30*time.Second+900*time.Millisecond, otpBudget(cfg))
}
