// Package server initializes and runs the LinkSphere auth server.
// It wires storage, the OTP cache, mail delivery and the HTTP boundary,
// runs the refresh-token sweeper and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/linksphere/internal/cryptox"
	"github.com/dmitrijs2005/linksphere/internal/logging"
	"github.com/dmitrijs2005/linksphere/internal/server/auth"
	"github.com/dmitrijs2005/linksphere/internal/server/config"
	"github.com/dmitrijs2005/linksphere/internal/server/mailer"
	"github.com/dmitrijs2005/linksphere/internal/server/metrics"
	"github.com/dmitrijs2005/linksphere/internal/server/otpstore"
	"github.com/dmitrijs2005/linksphere/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/linksphere/internal/server/rest"
	"github.com/dmitrijs2005/linksphere/internal/server/services"
	"github.com/dmitrijs2005/linksphere/internal/server/verification"
)

const drainTimeout = 15 * time.Second

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	redis       *redis.Client
	tasks       *verification.TaskQueue
	authService *services.AuthService
	httpServer  *rest.HTTPServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(os.Stdout, logging.Options{Backend: c.LogBackend, Level: c.LogLevel, Format: c.LogFormat})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	rdb, err := otpstore.NewClient(c.RedisURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis init error: %w", err)
	}

	sender, err := mailer.NewSender(mailer.Config{
		Backend:              c.MailBackend,
		SenderEmail:          c.SenderEmail,
		SupportEmail:         c.SupportEmail,
		SMTPHost:             c.SMTPHost,
		SMTPPort:             c.SMTPPort,
		SMTPUsername:         c.SMTPUsername,
		SMTPPassword:         c.SMTPPassword,
		PostmarkServerToken:  c.PostmarkServerToken,
		PostmarkAccountToken: c.PostmarkAccountToken,
	}, logger)
	if err != nil {
		_ = db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("mailer init error: %w", err)
	}

	tasks := verification.NewTaskQueue(c.BackgroundWorkers, c.BackgroundQueueSize, logger, m)

	otp := verification.NewOrchestrator(otpstore.New(rdb), sender, tasks, verification.Config{
		OTPTTL:          c.OTPTTL,
		MaxSendAttempts: c.MaxSendAttempts,
		RetryAttempts:   c.RetryAttempts,
		RetryBaseDelay:  c.RetryBaseDelay,
		CacheTimeout:    c.CacheTimeout,
		MailTimeout:     c.MailTimeout,
		AdminSecret:     c.AdminSecret,
		SupportEmail:    c.SupportEmail,
	}, logger, m)

	issuer := auth.NewIssuer([]byte(c.SecretKey), c.AccessTokenValidityDuration)

	as, err := services.NewAuthService(db, rm, c, cryptox.NewHasher(c.BcryptCost), issuer, otp, tasks, logger, m)
	if err != nil {
		_ = tasks.Close(ctx)
		_ = db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("auth service init error: %w", err)
	}

	router := rest.NewRouter(rest.NewHandler(as, logger), issuer, m, logger, rest.RouterConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		RequestTimeout: c.RequestTimeout,
		AdminSecret:    c.AdminSecret,
	})

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		redis:       rdb,
		tasks:       tasks,
		authService: as,
		httpServer:  rest.NewHTTPServer(c.EndpointAddrHTTP, router, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runSweeper removes expired refresh tokens every interval until ctx ends.
func (app *App) runSweeper(ctx context.Context, interval time.Duration, sweep func(context.Context) (int64, error)) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweep(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					app.logger.Error(ctx, "refresh token sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired refresh tokens removed", "count", n)
			}
		}
	}
}

// Run blocks until a signal arrives or the HTTP server fails, then drains
// background work and closes connections.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.runSweeper(ctx, app.config.SweepInterval, app.authService.SweepExpiredRefreshTokens)
	}()

	wg.Wait()

	app.shutdown()
}

func (app *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := app.tasks.Close(ctx); err != nil {
		app.logger.Warn(ctx, "background tasks not drained", "error", err)
	}
	if err := app.redis.Close(); err != nil {
		app.logger.Warn(ctx, "redis close failed", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close failed", "error", err)
	}

	app.logger.Info(ctx, "App stopped")
}
