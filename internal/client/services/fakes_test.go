package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/dmitrijs2005/pinvault/internal/api"
	"github.com/dmitrijs2005/pinvault/internal/client/client"
	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// ---- local cache ----

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	repos, err := client.InitDatabase(context.Background(), dsn)
	require.NoError(t, err)
	repos.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = repos.Close() })
	return repos.DB
}

// ---- fake server ----

const fakeOtp = "123456"

type fakeAccount struct {
	id         string
	salt       []byte
	authKey    string
	envelope   []byte
	vault      []byte
	version    int64
	otp        string
	resetToken string
}

// fakeServer implements client.Client with the server's rules kept in memory.
type fakeServer struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount
	session  string
	tokens   map[string]string
	down     bool
	calls    map[string]int

	// beforeWrite runs once, outside the lock, ahead of the next WriteVault.
	beforeWrite func()
}

func newFakeServer() *fakeServer {
	return &fakeServer{accounts: map[string]*fakeAccount{}, tokens: map[string]string{}, calls: map[string]int{}}
}

func (f *fakeServer) account(email string) *fakeAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[email]
}

func (f *fakeServer) count(m string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[m]
}

func (f *fakeServer) enter(m string) error {
	f.calls[m]++
	if f.down {
		return client.ErrUnavailable
	}
	return nil
}

func (f *fakeServer) current() (*fakeAccount, error) {
	a, ok := f.accounts[f.session]
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	return a, nil
}

func (f *fakeServer) Close() error { return nil }

func (f *fakeServer) Register(ctx context.Context, req *api.RegisterRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Register"); err != nil {
		return "", err
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	if _, ok := f.accounts[req.Email]; ok {
		return "", common.ErrConflict
	}
	a := &fakeAccount{
		id:       "acc-" + req.Email,
		salt:     req.Salt,
		authKey:  req.AuthKey,
		envelope: req.BackupKeyHash,
		vault:    req.InitVaultCiphertext,
		version:  1,
	}
	f.accounts[req.Email] = a
	return a.id, nil
}

func (f *fakeServer) GetSalt(ctx context.Context, email string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetSalt"); err != nil {
		return nil, err
	}
	if a, ok := f.accounts[email]; ok {
		return a.salt, nil
	}
	return []byte("pseudo-salt-pseudo-salt-pseudo-s"), nil
}

func (f *fakeServer) Login(ctx context.Context, email, authKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Login"); err != nil {
		return "", err
	}
	a, ok := f.accounts[email]
	if !ok || a.authKey != authKey {
		return "", common.ErrInvalidCredential
	}
	f.session = email
	return a.id, nil
}

func (f *fakeServer) Authenticate(ctx context.Context, email, authKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Authenticate"); err != nil {
		return "", err
	}
	a, ok := f.accounts[email]
	if !ok || a.authKey != authKey {
		return "", common.ErrInvalidCredential
	}
	tok := "tok-" + uuid.NewString()
	f.tokens[tok] = email
	return tok, nil
}

func (f *fakeServer) ReadVaultWithToken(ctx context.Context, token string) ([]byte, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ReadVault"); err != nil {
		return nil, 0, err
	}
	a, ok := f.accounts[f.tokens[token]]
	if !ok {
		return nil, 0, common.ErrorUnauthorized
	}
	return append([]byte(nil), a.vault...), a.version, nil
}

func (f *fakeServer) Logout() {
	f.mu.Lock()
	f.session = ""
	f.mu.Unlock()
}

func (f *fakeServer) ReadVault(ctx context.Context) ([]byte, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ReadVault"); err != nil {
		return nil, 0, err
	}
	a, err := f.current()
	if err != nil {
		return nil, 0, err
	}
	return append([]byte(nil), a.vault...), a.version, nil
}

func (f *fakeServer) WriteVault(ctx context.Context, ct []byte, expected int64) (int64, error) {
	f.mu.Lock()
	hook := f.beforeWrite
	f.beforeWrite = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("WriteVault"); err != nil {
		return 0, err
	}
	a, err := f.current()
	if err != nil {
		return 0, err
	}
	if a.version != expected {
		return 0, &common.VersionConflictError{Current: a.version}
	}
	a.vault = ct
	a.version++
	return a.version, nil
}

func (f *fakeServer) ChangePassword(ctx context.Context, req *api.ChangePasswordRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ChangePassword"); err != nil {
		return 0, err
	}
	a, err := f.current()
	if err != nil {
		return 0, err
	}
	if err := req.Validate(); err != nil {
		return 0, err
	}
	if a.authKey != req.OldAuthKey {
		return 0, common.ErrInvalidCredential
	}
	a.salt, a.authKey, a.envelope, a.vault = req.NewSalt, req.NewAuthKey, req.NewBackupKeyHash, req.NewEncryptedVault
	a.otp, a.resetToken = "", ""
	a.version++
	return a.version, nil
}

func (f *fakeServer) SendOtp(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SendOtp"); err != nil {
		return err
	}
	if a, ok := f.accounts[email]; ok {
		a.otp = fakeOtp
	}
	return nil
}

func (f *fakeServer) VerifyOtp(ctx context.Context, email, otp string) (*api.VerifyOtpResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("VerifyOtp"); err != nil {
		return nil, err
	}
	a, ok := f.accounts[email]
	if !ok || a.otp == "" || a.otp != otp {
		return nil, common.ErrRecoveryFailed
	}
	a.otp = ""
	a.resetToken = "reset-" + uuid.NewString()
	return &api.VerifyOtpResponse{BackupEnvelope: a.envelope, ResetToken: a.resetToken}, nil
}

func (f *fakeServer) ResetPassword(ctx context.Context, req *api.ResetPasswordRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ResetPassword"); err != nil {
		return 0, err
	}
	if err := req.Validate(); err != nil {
		return 0, err
	}
	for _, a := range f.accounts {
		if a.resetToken != "" && a.resetToken == req.ResetToken {
			a.salt, a.authKey, a.envelope, a.vault = req.NewSalt, req.NewAuthKey, req.NewBackupKeyHash, req.NewEncryptedVault
			a.resetToken = ""
			a.version++
			return a.version, nil
		}
	}
	return 0, common.ErrorUnauthorized
}

func (f *fakeServer) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("Ping")
}

var _ client.Client = (*fakeServer)(nil)
