package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/pinvault/internal/client/client"
	"github.com/dmitrijs2005/pinvault/internal/client/config"
	"github.com/dmitrijs2005/pinvault/internal/client/models"
	"github.com/dmitrijs2005/pinvault/internal/client/services"
	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/dmitrijs2005/pinvault/internal/logging"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeAuth struct {
	lastEmail string
	regEmail  string
	regPass   string
	regErr    error
	loginPass string
	loginErr  error
	forgot    bool
	loggedOut bool
	pingErr   error
	pings     int
}

func (f *fakeAuth) Register(ctx context.Context, email, password string) (*services.Registration, error) {
	f.regEmail, f.regPass = email, password
	if f.regErr != nil {
		return nil, f.regErr
	}
	return &services.Registration{AccountID: "acc-1", PIN: "424242"}, nil
}
func (f *fakeAuth) Login(ctx context.Context, email, password string) (*services.Session, error) {
	f.loginPass = password
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &services.Session{Email: email, AccountID: "acc-1"}, nil
}
func (f *fakeAuth) Logout(ctx context.Context, s *services.Session, forget bool) error {
	f.loggedOut, f.forgot = true, forget
	return nil
}
func (f *fakeAuth) LastEmail(ctx context.Context) (string, error) { return f.lastEmail, nil }
func (f *fakeAuth) Ping(ctx context.Context) error {
	f.pings++
	return f.pingErr
}
func (f *fakeAuth) Close() error { return nil }

type fakeVaults struct {
	items   models.Items
	version int64
	offline bool
	loadErr error
	fnErr   error
	applied int
}

func (f *fakeVaults) Load(ctx context.Context, s *services.Session) (*services.Snapshot, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return &services.Snapshot{Items: append(models.Items(nil), f.items...), Version: f.version, Offline: f.offline}, nil
}
func (f *fakeVaults) Apply(ctx context.Context, s *services.Session, attempts int, fn func(models.Items) (models.Items, error)) (*services.Snapshot, error) {
	f.applied++
	items, err := fn(append(models.Items(nil), f.items...))
	if err != nil {
		return nil, err
	}
	f.items = items
	f.version++
	return &services.Snapshot{Items: items, Version: f.version}, nil
}

type fakePassword struct {
	gotOld, gotNew string
	gotItems       models.Items
	err            error
}

func (f *fakePassword) ChangePassword(ctx context.Context, s *services.Session, items models.Items, oldPassword, newPassword string) (*services.Rotation, error) {
	f.gotOld, f.gotNew, f.gotItems = oldPassword, newPassword, items
	if f.err != nil {
		return nil, f.err
	}
	return &services.Rotation{PIN: "135790", Version: 9}, nil
}

type fakeRecovery struct {
	requested string
	gotOtp    string
	gotPin    string
	verifyErr error
	resetPass string
}

func (f *fakeRecovery) RequestOtp(ctx context.Context, email string) error {
	f.requested = email
	return nil
}
func (f *fakeRecovery) Recover(ctx context.Context, email, otp, pin string) (*services.Recovered, error) {
	f.gotOtp, f.gotPin = otp, pin
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &services.Recovered{Email: email, Password: "old-master", ResetToken: "tok"}, nil
}
func (f *fakeRecovery) ResetPassword(ctx context.Context, rec *services.Recovered, newPassword string) (*services.Rotation, error) {
	f.resetPass = newPassword
	return &services.Rotation{PIN: "246802", Version: 4}, nil
}

type testApp struct {
	*App
	authF     *fakeAuth
	vaultsF   *fakeVaults
	passwordF *fakePassword
	recoveryF *fakeRecovery
	out       *bytes.Buffer
}

func newTestApp(t *testing.T, input ...string) *testApp {
	t.Helper()
	ta := &testApp{
		authF:     &fakeAuth{},
		vaultsF:   &fakeVaults{version: 1},
		passwordF: &fakePassword{},
		recoveryF: &fakeRecovery{},
		out:       &bytes.Buffer{},
	}
	ta.App = &App{
		config:   &config.Config{},
		logger:   logging.Nop(),
		auth:     ta.authF,
		vaults:   ta.vaultsF,
		password: ta.passwordF,
		recovery: ta.recoveryF,
		reader:   bufio.NewReader(strings.NewReader(strings.Join(input, "\n") + "\n")),
		out:      ta.out,
	}
	ta.mode.Store(ModeOnline)
	return ta
}

func (ta *testApp) login(t *testing.T) {
	t.Helper()
	ta.session = &services.Session{Email: "alice@example.com", AccountID: "acc-1"}
}

// ---- tests ----

func TestRegister_ShowsPIN(t *testing.T) {
	stubSecrets(t, "pw", "pw")
	ta := newTestApp(t, "alice@example.com")

	require.NoError(t, ta.Register(context.Background()))
	require.Equal(t, "alice@example.com", ta.authF.regEmail)
	require.Equal(t, "pw", ta.authF.regPass)
	require.Contains(t, ta.out.String(), "YOUR RECOVERY PIN: 424242")
}

func TestRegister_PasswordMismatch(t *testing.T) {
	stubSecrets(t, "pw", "other")
	ta := newTestApp(t, "alice@example.com")

	require.ErrorIs(t, ta.Register(context.Background()), ErrPasswordMismatch)
	require.Empty(t, ta.authF.regEmail)
}

func TestLogin_UsesCachedEmailAndLoadsVault(t *testing.T) {
	stubSecrets(t, "pw")
	ta := newTestApp(t, "")
	ta.authF.lastEmail = "alice@example.com"
	ta.vaultsF.items = models.Items{{ID: "1", Site: "github"}}

	require.NoError(t, ta.Login(context.Background()))
	require.True(t, ta.isLoggedIn())
	require.Equal(t, "alice@example.com", ta.session.Email)
	require.Len(t, ta.snap.Items, 1)
	require.Equal(t, "(alice@example.com online)", ta.getStatus())
	require.Contains(t, ta.out.String(), "Vault loaded: 1 item(s), version 1")
}

func TestLogin_Failure(t *testing.T) {
	stubSecrets(t, "bad")
	ta := newTestApp(t, "alice@example.com")
	ta.authF.loginErr = common.ErrInvalidCredential

	err := ta.Login(context.Background())
	require.ErrorIs(t, err, common.ErrInvalidCredential)
	require.False(t, ta.isLoggedIn())
	require.Equal(t, "invalid email, password or PIN", describe(err))
}

func TestSync_OfflineSwitchesMode(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)
	ta.vaultsF.offline = true

	require.NoError(t, ta.Sync(context.Background()))
	require.Equal(t, ModeOffline, ta.getMode())
	require.Contains(t, ta.out.String(), "read-only")
}

func TestAddListShowRemove(t *testing.T) {
	stubSecrets(t, "gh-pass")
	ta := newTestApp(t, "github", "alice", "https://github.com", "env=prod", "")
	ta.login(t)
	ctx := context.Background()

	require.NoError(t, ta.Add(ctx))
	require.Len(t, ta.vaultsF.items, 1)
	c := ta.vaultsF.items[0]
	require.Equal(t, "gh-pass", c.Password)
	require.Equal(t, []models.Metadata{{Name: "env", Value: "prod"}}, c.Metadata)
	require.Equal(t, int64(2), ta.snap.Version)

	ta.out.Reset()
	require.NoError(t, ta.List(ctx))
	require.Contains(t, ta.out.String(), "github")
	require.Contains(t, ta.out.String(), c.ID[:8])
	require.NotContains(t, ta.out.String(), "gh-pass")

	ta.out.Reset()
	require.NoError(t, ta.Show(ctx, "github"))
	require.Contains(t, ta.out.String(), "Password: gh-pass")
	require.Contains(t, ta.out.String(), "env: prod")

	require.ErrorIs(t, ta.Show(ctx, "nope"), models.ErrItemNotFound)

	require.NoError(t, ta.Remove(ctx, c.ID[:8]))
	require.Empty(t, ta.vaultsF.items)
	require.Equal(t, int64(3), ta.snap.Version)

	require.ErrorIs(t, ta.Remove(ctx, "github"), models.ErrItemNotFound)
}

func TestAdd_RequiresSite(t *testing.T) {
	ta := newTestApp(t, "")
	ta.login(t)

	require.ErrorIs(t, ta.Add(context.Background()), common.ErrValidation)
	require.Zero(t, ta.vaultsF.applied)
}

func TestList_Empty(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)

	require.NoError(t, ta.List(context.Background()))
	require.Contains(t, ta.out.String(), "Vault is empty")
}

func TestChangePassword_PassesFreshItems(t *testing.T) {
	stubSecrets(t, "old", "new", "new")
	ta := newTestApp(t)
	ta.login(t)
	ta.vaultsF.items = models.Items{{ID: "1", Site: "a"}}

	require.NoError(t, ta.ChangePassword(context.Background()))
	require.Equal(t, "old", ta.passwordF.gotOld)
	require.Equal(t, "new", ta.passwordF.gotNew)
	require.Len(t, ta.passwordF.gotItems, 1)
	require.Equal(t, int64(9), ta.snap.Version)
	require.Contains(t, ta.out.String(), "YOUR RECOVERY PIN: 135790")
}

func TestChangePassword_RefusesOffline(t *testing.T) {
	stubSecrets(t, "old", "new", "new")
	ta := newTestApp(t)
	ta.login(t)
	ta.vaultsF.offline = true

	require.ErrorIs(t, ta.ChangePassword(context.Background()), client.ErrUnavailable)
	require.Empty(t, ta.passwordF.gotOld)
}

func TestRecover_ShowsPasswordAndResets(t *testing.T) {
	stubSecrets(t, "123456", "fresh", "fresh")
	ta := newTestApp(t, "alice@example.com", " 654321 ", "y")

	require.NoError(t, ta.Recover(context.Background()))
	require.Equal(t, "alice@example.com", ta.recoveryF.requested)
	require.Equal(t, "654321", ta.recoveryF.gotOtp)
	require.Equal(t, "123456", ta.recoveryF.gotPin)
	require.Equal(t, "fresh", ta.recoveryF.resetPass)
	require.Contains(t, ta.out.String(), "Your master password is: old-master")
	require.Contains(t, ta.out.String(), "YOUR RECOVERY PIN: 246802")
}

func TestRecover_WithoutReset(t *testing.T) {
	stubSecrets(t, "123456")
	ta := newTestApp(t, "alice@example.com", "654321", "n")

	require.NoError(t, ta.Recover(context.Background()))
	require.Empty(t, ta.recoveryF.resetPass)
}

func TestRecover_Failure(t *testing.T) {
	stubSecrets(t, "123456")
	ta := newTestApp(t, "alice@example.com", "654321")
	ta.recoveryF.verifyErr = common.ErrRecoveryFailed

	err := ta.Recover(context.Background())
	require.ErrorIs(t, err, common.ErrRecoveryFailed)
	require.NotContains(t, ta.out.String(), "master password is")
}

func TestLogout(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)

	require.NoError(t, ta.Logout(context.Background(), true))
	require.True(t, ta.authF.loggedOut)
	require.True(t, ta.authF.forgot)
	require.False(t, ta.isLoggedIn())
	require.Nil(t, ta.snap)
}

func TestDescribe(t *testing.T) {
	require.Equal(t, "server unavailable", describe(client.ErrUnavailable))
	require.Equal(t, "too many attempts; wait a minute", describe(common.ErrTooManyRequests))
	require.Equal(t, "boom", describe(errors.New("boom")))
}

func TestOnlineStatusWatcher(t *testing.T) {
	ta := newTestApp(t)
	ta.authF.pingErr = client.ErrUnavailable

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ta.StartOnlineStatusWatcher(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return ta.getMode() == ModeOffline }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
