// Package verification drives the email OTP flow: rate-limited code issue,
// concurrent storage and delivery, verification and admin resets.
package verification

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/linksphere/internal/common"
	"github.com/dmitrijs2005/linksphere/internal/logging"
	"github.com/dmitrijs2005/linksphere/internal/server/mailer"
	"github.com/dmitrijs2005/linksphere/internal/server/metrics"
	"golang.org/x/sync/errgroup"
)

const codeLength = 6

// CodeStore is the OTP cache. otpstore.Store implements it over Redis.
type CodeStore interface {
	SetCode(ctx context.Context, email, code string, ttl time.Duration) error
	GetCode(ctx context.Context, email string) (string, error)
	DeleteCode(ctx context.Context, email string) error
	Attempts(ctx context.Context, email string) (int64, error)
	IncrAttempts(ctx context.Context, email string) (int64, error)
	DecrAttempts(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

type Config struct {
	OTPTTL          time.Duration
	MaxSendAttempts int64
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	CacheTimeout    time.Duration
	MailTimeout     time.Duration
	AdminSecret     string
	SupportEmail    string
}

type Orchestrator struct {
	store   CodeStore
	sender  mailer.Sender
	tasks   *TaskQueue
	cfg     Config
	log     logging.Logger
	metrics *metrics.Metrics

	newCode func() (string, error)
}

func NewOrchestrator(store CodeStore, sender mailer.Sender, tasks *TaskQueue, cfg Config, log logging.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		store:   store,
		sender:  sender,
		tasks:   tasks,
		cfg:     cfg,
		log:     log.With("module", "verification"),
		metrics: m,
		newCode: func() (string, error) { return common.MakeNumericCode(codeLength) },
	}
}

// InitiateOTP issues a fresh code for email unless the send cap is reached.
// A send slot is reserved with INCR before anything else, so concurrent
// callers cannot overshoot the cap and a capped address causes no code
// write and no mail. Storage and delivery run concurrently and must both
// succeed. A failed delivery keeps its slot; a rejected request returns it.
func (o *Orchestrator) InitiateOTP(ctx context.Context, email string) error {
	sent, err := o.reserveSend(ctx, email)
	if err != nil {
		o.metrics.OTPSend("error")
		return err
	}
	if sent > o.cfg.MaxSendAttempts {
		o.releaseSend(ctx, email)
		o.log.Warn(ctx, "otp send cap reached", "email", email, "attempts", sent-1)
		o.metrics.OTPSend("rate_limited")
		return common.ErrRateLimited
	}

	code, err := o.newCode()
	if err != nil {
		o.releaseSend(ctx, email)
		return fmt.Errorf("%w: generate code: %v", common.ErrInternal, err)
	}

	msg, err := mailer.OTPMessage(email, code, o.cfg.OTPTTL, o.cfg.SupportEmail)
	if err != nil {
		o.releaseSend(ctx, email)
		return fmt.Errorf("%w: %v", common.ErrInternal, err)
	}

	var g errgroup.Group
	g.Go(func() error {
		return o.withRetry(ctx, "store otp", o.cfg.CacheTimeout, func(ctx context.Context) error {
			return o.store.SetCode(ctx, email, code, o.cfg.OTPTTL)
		})
	})
	g.Go(func() error {
		return o.withRetry(ctx, "send otp", o.cfg.MailTimeout, func(ctx context.Context) error {
			return o.sender.Send(ctx, msg)
		})
	})
	if err := g.Wait(); err != nil {
		o.log.Error(ctx, "otp initiation failed", "email", email, "error", err)
		o.metrics.OTPSend("error")
		return errors.Join(common.ErrDependency, err)
	}

	o.log.Info(ctx, "otp sent", "email", email, "attempt", sent)
	o.metrics.OTPSend("sent")
	return nil
}

func (o *Orchestrator) reserveSend(ctx context.Context, email string) (int64, error) {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CacheTimeout)
	defer cancel()

	n, err := o.store.IncrAttempts(cctx, email)
	if err != nil {
		return 0, errors.Join(common.ErrDependency, err)
	}
	return n, nil
}

// releaseSend gives a reserved slot back. Failure only leaves the counter
// one higher, so it is logged and otherwise ignored.
func (o *Orchestrator) releaseSend(ctx context.Context, email string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.CacheTimeout)
	defer cancel()

	if err := o.store.DecrAttempts(cctx, email); err != nil {
		o.log.Warn(ctx, "otp send slot not released", "email", email, "error", err)
	}
}

// VerifyOTP reports whether code matches the stored one. Missing codes and
// cache failures both count as a mismatch. A match schedules removal of the
// stored code.
func (o *Orchestrator) VerifyOTP(ctx context.Context, email, code string) bool {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CacheTimeout)
	defer cancel()

	stored, err := o.store.GetCode(cctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			o.log.Warn(ctx, "otp lookup failed", "email", email, "error", err)
		}
		o.metrics.OTPVerify(false)
		return false
	}

	ok := subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1
	o.metrics.OTPVerify(ok)
	if !ok {
		return false
	}

	o.tasks.Enqueue("delete otp", o.cfg.CacheTimeout, func(ctx context.Context) error {
		return o.store.DeleteCode(ctx, email)
	})
	return true
}

// AdminReset clears the code and the send counter for email. A wrong secret
// leaves both untouched.
func (o *Orchestrator) AdminReset(ctx context.Context, email, secret string) error {
	if o.cfg.AdminSecret == "" ||
		subtle.ConstantTimeCompare([]byte(o.cfg.AdminSecret), []byte(secret)) != 1 {
		o.log.Warn(ctx, "admin reset rejected", "email", email)
		return common.ErrUnauthorized
	}

	cctx, cancel := context.WithTimeout(ctx, o.cfg.CacheTimeout)
	defer cancel()

	if err := o.store.Reset(cctx, email); err != nil {
		return errors.Join(common.ErrDependency, err)
	}

	o.log.Info(ctx, "otp counter reset", "email", email)
	return nil
}

// Attempts returns how many codes were sent to email so far.
func (o *Orchestrator) Attempts(ctx context.Context, email string) (int64, error) {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CacheTimeout)
	defer cancel()

	n, err := o.store.Attempts(cctx, email)
	if err != nil {
		return 0, errors.Join(common.ErrDependency, err)
	}
	return n, nil
}
