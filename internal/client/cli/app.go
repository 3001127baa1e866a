package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/pinvault/internal/client/client"
	"github.com/dmitrijs2005/pinvault/internal/client/config"
	"github.com/dmitrijs2005/pinvault/internal/client/models"
	"github.com/dmitrijs2005/pinvault/internal/client/services"
	"github.com/dmitrijs2005/pinvault/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type authService interface {
	Register(ctx context.Context, email, password string) (*services.Registration, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Logout(ctx context.Context, s *services.Session, forget bool) error
	LastEmail(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

type vaultService interface {
	Load(ctx context.Context, s *services.Session) (*services.Snapshot, error)
	Apply(ctx context.Context, s *services.Session, attempts int, fn func(models.Items) (models.Items, error)) (*services.Snapshot, error)
}

type passwordService interface {
	ChangePassword(ctx context.Context, s *services.Session, items models.Items, oldPassword, newPassword string) (*services.Rotation, error)
}

type recoveryService interface {
	RequestOtp(ctx context.Context, email string) error
	Recover(ctx context.Context, email, otp, pin string) (*services.Recovered, error)
	ResetPassword(ctx context.Context, rec *services.Recovered, newPassword string) (*services.Rotation, error)
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	auth     authService
	vaults   vaultService
	password passwordService
	recovery recoveryService
	closeDB  func() error

	session *services.Session
	snap    *services.Snapshot
	mode    atomic.Value

	reader *bufio.Reader
	out    io.Writer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stderr, "warn").With("module", "cli")

	repos, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		logger.Error(ctx, "error initializing database", "path", c.DatabasePath, "error", err)
		return nil, err
	}

	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	a := &App{
		config:   c,
		logger:   logger,
		auth:     services.NewAuthService(apiClient, repos.DB),
		vaults:   services.NewVaultService(apiClient, repos.DB),
		password: services.NewPasswordService(apiClient, repos.DB),
		recovery: services.NewRecoveryService(apiClient, repos.DB),
		closeDB:  repos.Close,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
	}
	a.mode.Store(ModeOnline)
	return a, nil
}

// Run shows the REPL until the user exits or ctx ends.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		if a.session != nil {
			a.session.Close()
		}
		_ = a.auth.Close()
		if a.closeDB != nil {
			_ = a.closeDB()
		}
	}()

	if a.config.OnlineCheckInterval > 0 {
		go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	}

	fmt.Fprintln(a.out, "Welcome to PinVault CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader, a.out)
}

func (a *App) getMode() Mode {
	m, _ := a.mode.Load().(Mode)
	return m
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	if prev := a.mode.Swap(mode); prev != mode {
		a.logger.Info(ctx, "connectivity changed", "mode", mode)
	}
}

func (a *App) isLoggedIn() bool {
	return a.session != nil
}

func (a *App) getStatus() string {
	s := string(a.getMode())
	if a.session != nil {
		s = a.session.Email + " " + s
	}
	return fmt.Sprintf("(%s)", s)
}

// StartOnlineStatusWatcher pings the server every interval until ctx ends.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.auth.Ping(pctx)
			cancel()

			if err != nil {
				a.setMode(ctx, ModeOffline)
			} else {
				a.setMode(ctx, ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}
