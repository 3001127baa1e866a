// Package server wires configuration, storage, services and the gRPC
// endpoint together and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/pinvault/internal/dbx"
	"github.com/dmitrijs2005/pinvault/internal/logging"
	"github.com/dmitrijs2005/pinvault/internal/server/auth"
	"github.com/dmitrijs2005/pinvault/internal/server/config"
	"github.com/dmitrijs2005/pinvault/internal/server/mailer"
	"github.com/dmitrijs2005/pinvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pinvault/internal/server/services"
	"github.com/dmitrijs2005/pinvault/internal/server/throttle"

	gs "github.com/dmitrijs2005/pinvault/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	pool       *dbx.SQLPool
	dispatcher *mailer.Dispatcher
	limiter    *throttle.KeyedLimiter
	grpc       *gs.GRPCServer
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// NewApp connects to the database, applies migrations and builds every
// service. The caller must Run the app to release its resources.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrations error: %w", err)
	}

	sender, err := newSender(ctx, c, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	pool := dbx.NewSQLPool(db, nil)
	tokens := auth.NewIssuer([]byte(c.SecretKey), c.SessionTTL, c.ResetTokenTTL)
	dispatcher := mailer.NewDispatcher(sender, c.DispatcherWorkers, c.DispatcherQueue, logger)
	limiter := throttle.NewKeyedLimiter(c.OtpRatePerMinute, c.OtpBurst)

	accounts := services.NewAccountService(pool, repos, tokens, []byte(c.SecretKey), logger)
	vaults := services.NewVaultService(pool, repos, logger)
	recovery := services.NewRecoveryService(pool, repos, tokens, dispatcher, limiter, c.OtpTTL, logger)

	return &App{
		config:     c,
		logger:     logger,
		pool:       pool,
		dispatcher: dispatcher,
		limiter:    limiter,
		grpc:       gs.NewGRPCServer(c.EndpointAddrGRPC, logger, accounts, vaults, recovery, tokens),
	}, nil
}

func newSender(ctx context.Context, c *config.Config, logger logging.Logger) (mailer.Sender, error) {
	switch c.MailBackend {
	case config.MailBackendLog:
		return mailer.NewLogSender(logger), nil
	case config.MailBackendSES:
		s, err := mailer.NewSESSender(ctx, mailer.SESConfig{
			Region:    c.SESRegion,
			From:      c.SESSender,
			AccessKey: c.SESAccessKey,
			SecretKey: c.SESSecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("mail init error: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown mail backend %q", c.MailBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a signal arrives, then drains the
// mail queue and closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)
	app.dispatcher.Start(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.limiter.Run(ctx, 5*time.Minute, 30*time.Minute)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.dispatcher.Stop()
	if err := app.pool.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
