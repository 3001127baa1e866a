// Package services contains the client-side flows of PinVault. Every secret
// is derived and used here; only AuthKey, ciphertexts and envelopes go to the
// server.
package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/pinvault/internal/api"
	"github.com/dmitrijs2005/pinvault/internal/client/client"
	"github.com/dmitrijs2005/pinvault/internal/client/models"
	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/dmitrijs2005/pinvault/internal/cryptox"
)

// Session is the state of a logged-in user. The derived keys stay in memory
// only; call Close to wipe them.
type Session struct {
	Email     string
	AccountID string

	salt []byte
	keys *cryptox.DerivedKeySet
}

// Close zeroes the session keys.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.keys.Wipe()
	s.keys = nil
}

func (s *Session) encKey() ([]byte, error) {
	if s == nil || s.keys == nil {
		return nil, common.ErrorUnauthorized
	}
	return s.keys.EncKey, nil
}

// Registration is what the user must be shown once after signing up.
type Registration struct {
	AccountID string
	PIN       string
}

// AuthService registers accounts and opens sessions.
type AuthService struct {
	client client.Client
	cache  cache
}

// NewAuthService constructs an AuthService bound to the given API client and
// local cache database.
func NewAuthService(c client.Client, db *sql.DB) *AuthService {
	return &AuthService{client: c, cache: cache{db: db}}
}

// Register creates an account: a fresh KDF salt, keys derived from password,
// a recovery PIN wrapping the password and an empty encrypted vault.
func (a *AuthService) Register(ctx context.Context, email, password string) (*Registration, error) {
	email = common.NormalizeEmail(email)
	if err := common.ValidateEmail(email); err != nil {
		return nil, err
	}

	salt := cryptox.NewSalt()
	keys, err := cryptox.DeriveKeys(email, password, salt)
	if err != nil {
		return nil, err
	}
	defer keys.Wipe()

	pin, err := cryptox.GeneratePIN()
	if err != nil {
		return nil, err
	}
	envelope, err := cryptox.WrapPassword(password, pin)
	if err != nil {
		return nil, err
	}
	initVault, err := cryptox.EncryptVault(models.Items{}, keys.EncKey)
	if err != nil {
		return nil, err
	}

	id, err := a.client.Register(ctx, &api.RegisterRequest{
		Email:               email,
		Salt:                salt,
		AuthKey:             keys.AuthKey.String(),
		BackupKeyHash:       envelope,
		InitVaultCiphertext: initVault,
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &Registration{AccountID: id, PIN: pin}, nil
}

// Login fetches the account salt, derives the keys and authenticates with
// AuthKey. The salt is cached locally on success.
func (a *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = common.NormalizeEmail(email)
	if err := common.ValidateEmail(email); err != nil {
		return nil, err
	}

	salt, err := a.client.GetSalt(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get salt: %w", err)
	}

	keys, err := cryptox.DeriveKeys(email, password, salt)
	if err != nil {
		return nil, err
	}

	accountID, err := a.client.Login(ctx, email, keys.AuthKey.String())
	if err != nil {
		keys.Wipe()
		return nil, fmt.Errorf("login: %w", err)
	}

	if err := a.cache.saveLogin(ctx, email, accountID, salt); err != nil {
		keys.Wipe()
		return nil, fmt.Errorf("cache login: %w", err)
	}

	return &Session{Email: email, AccountID: accountID, salt: salt, keys: keys}, nil
}

// Logout drops the server session and wipes s. With forget set, the local
// cache is cleared too.
func (a *AuthService) Logout(ctx context.Context, s *Session, forget bool) error {
	a.client.Logout()
	s.Close()
	if forget {
		return a.cache.clear(ctx)
	}
	return nil
}

// LastEmail is the email of the account cached on this machine, or "".
func (a *AuthService) LastEmail(ctx context.Context) (string, error) {
	p, err := a.cache.load(ctx)
	if err != nil || p == nil {
		return "", err
	}
	return p.Email, nil
}

// Ping proxies a liveness check to the underlying client.
func (a *AuthService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// Close releases resources held by the underlying client.
func (a *AuthService) Close() error {
	return a.client.Close()
}
