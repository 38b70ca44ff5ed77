package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/linksphere/internal/common"
	"github.com/dmitrijs2005/linksphere/internal/cryptox"
	"github.com/dmitrijs2005/linksphere/internal/dbx"
	"github.com/dmitrijs2005/linksphere/internal/logging"
	"github.com/dmitrijs2005/linksphere/internal/server/auth"
	"github.com/dmitrijs2005/linksphere/internal/server/config"
	"github.com/dmitrijs2005/linksphere/internal/server/models"
	"github.com/dmitrijs2005/linksphere/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/linksphere/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/linksphere/internal/server/verification"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// strongPass clears the zxcvbn threshold comfortably.
const strongPass = "Zq8#mL2!vT9xRw"

type memAccounts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Account

	getErr error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{rows: map[uuid.UUID]*models.Account{}}
}

func (m *memAccounts) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.Email == a.Email || r.Username == a.Username {
			return nil, fmt.Errorf("%w: accounts_email_key", common.ErrConflict)
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.rows[a.ID] = &cp
	return a, nil
}

func (m *memAccounts) find(match func(*models.Account) bool) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, r := range m.rows {
		if match(r) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memAccounts) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return m.find(func(a *models.Account) bool { return a.Email == email })
}

func (m *memAccounts) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return m.find(func(a *models.Account) bool { return a.ID == id })
}

func (m *memAccounts) GetByEmailOrUsername(ctx context.Context, email, username string) (*models.Account, error) {
	return m.find(func(a *models.Account) bool { return a.Email == email || a.Username == username })
}

func (m *memAccounts) MarkVerified(ctx context.Context, email string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.Email == email && !r.IsVerified {
			r.IsVerified = true
			r.Status = models.StatusActive
			r.VerifiedAt = &at
			r.VerificationAttempts++
			return nil
		}
	}
	return common.ErrNotFound
}

// put stores a ready-made account, bypassing the uniqueness check.
func (m *memAccounts) put(t *testing.T, email, username, password string, status models.Status, verified bool) *models.Account {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	a := &models.Account{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Gender:       models.GenderOther,
		Status:       status,
		IsVerified:   verified,
		CreatedAt:    time.Now(),
	}
	m.mu.Lock()
	m.rows[a.ID] = a
	m.mu.Unlock()
	return a
}

type memTokens struct {
	mu   sync.Mutex
	rows map[string]*models.RefreshToken

	createErr error
	// consumeGate runs before every Consume, letting tests line callers up.
	consumeGate func()
}

func newMemTokens() *memTokens {
	return &memTokens{rows: map[string]*models.RefreshToken{}}
}

func (m *memTokens) Create(ctx context.Context, accountID uuid.UUID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	m.rows[token] = &models.RefreshToken{AccountID: accountID, Token: token, ExpiresAt: expiresAt, CreatedAt: time.Now()}
	return nil
}

func (m *memTokens) Consume(ctx context.Context, token string) (*models.RefreshToken, error) {
	if m.consumeGate != nil {
		m.consumeGate()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rt, ok := m.rows[token]
	if !ok {
		return nil, common.ErrNotFound
	}
	delete(m.rows, token)
	return rt, nil
}

func (m *memTokens) get(token string) (*models.RefreshToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.rows[token]
	if !ok {
		return nil, false
	}
	cp := *rt
	return &cp, true
}

func (m *memTokens) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, token)
	return nil
}

func (m *memTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, rt := range m.rows {
		if rt.Expired(now) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *memTokens) has(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[token]
	return ok
}

type fakeRepoManager struct {
	accounts *memAccounts
	tokens   *memTokens
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error       { return nil }
func (m *fakeRepoManager) Accounts(db dbx.DBTX) accounts.Repository           { return m.accounts }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository { return m.tokens }

type fakeOTP struct {
	mu        sync.Mutex
	initiated []string
	initErr   error
	delay     time.Duration
	codes     map[string]string
	resets    []string
	resetErr  error
	attempts  int64
}

func newFakeOTP() *fakeOTP {
	return &fakeOTP{codes: map[string]string{}}
}

func (f *fakeOTP) InitiateOTP(ctx context.Context, email string) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiated = append(f.initiated, email)
	return f.initErr
}

func (f *fakeOTP) VerifyOTP(ctx context.Context, email, code string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	want, ok := f.codes[email]
	return ok && want == code
}

func (f *fakeOTP) AdminReset(ctx context.Context, email, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resets = append(f.resets, email)
	return nil
}

func (f *fakeOTP) Attempts(ctx context.Context, email string) (int64, error) {
	return f.attempts, nil
}

func (f *fakeOTP) Initiated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.initiated...)
}

func testServerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.RegisterGrace = time.Second
	cfg.RetryBaseDelay = time.Millisecond
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

type harness struct {
	svc      *AuthService
	mock     sqlmock.Sqlmock
	accounts *memAccounts
	tokens   *memTokens
	otp      *fakeOTP
	issuer   *auth.Issuer
	cfg      *config.Config
}

func newHarness(t *testing.T, otp OTPFlow) *harness {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := testServerConfig()
	rm := &fakeRepoManager{accounts: newMemAccounts(), tokens: newMemTokens()}
	issuer := auth.NewIssuer([]byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)

	tasks := verification.NewTaskQueue(2, 16, logging.Nop(), nil)
	t.Cleanup(func() { _ = tasks.Close(context.Background()) })

	fake, _ := otp.(*fakeOTP)
	if otp == nil {
		fake = newFakeOTP()
		otp = fake
	}

	svc, err := NewAuthService(db, rm, cfg, cryptox.NewHasher(cfg.BcryptCost), issuer, otp, tasks, logging.Nop(), nil)
	require.NoError(t, err)

	return &harness{svc: svc, mock: mock, accounts: rm.accounts, tokens: rm.tokens, otp: fake, issuer: issuer, cfg: cfg}
}
