package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/pinvault/internal/api"
	"github.com/dmitrijs2005/pinvault/internal/client/client"
	"github.com/dmitrijs2005/pinvault/internal/client/models"
	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/dmitrijs2005/pinvault/internal/cryptox"
)

// Rotation is the outcome of a password change or reset. The PIN replaces
// the previous one and must be shown to the user.
type Rotation struct {
	PIN     string
	Version int64
}

// rekeyed is everything a new password produces before anything is sent.
type rekeyed struct {
	salt     []byte
	keys     *cryptox.DerivedKeySet
	pin      string
	envelope []byte
	vault    []byte
}

// rekey derives keys for newPassword under a fresh salt, re-encrypts items
// and mints a new PIN envelope. All of it happens before any network call.
func rekey(email, newPassword string, items models.Items) (*rekeyed, error) {
	salt := cryptox.NewSalt()
	keys, err := cryptox.DeriveKeys(email, newPassword, salt)
	if err != nil {
		return nil, err
	}
	pin, err := cryptox.GeneratePIN()
	if err != nil {
		keys.Wipe()
		return nil, err
	}
	envelope, err := cryptox.WrapPassword(newPassword, pin)
	if err != nil {
		keys.Wipe()
		return nil, err
	}
	if items == nil {
		items = models.Items{}
	}
	vault, err := cryptox.EncryptVault(items, keys.EncKey)
	if err != nil {
		keys.Wipe()
		return nil, err
	}
	return &rekeyed{salt: salt, keys: keys, pin: pin, envelope: envelope, vault: vault}, nil
}

// PasswordService changes the master password of a logged-in session.
type PasswordService struct {
	client client.Client
	cache  cache
}

func NewPasswordService(c client.Client, db *sql.DB) *PasswordService {
	return &PasswordService{client: c, cache: cache{db: db}}
}

// ChangePassword re-derives the old keys and checks them against the session,
// re-encrypts items under the new password and submits salt, AuthKey,
// envelope and vault as one replacement. On success s carries the new keys.
// Once the server accepted the change the Rotation is returned even if a
// later local step fails, so the new PIN is never lost.
func (p *PasswordService) ChangePassword(ctx context.Context, s *Session, items models.Items, oldPassword, newPassword string) (*Rotation, error) {
	sessionKey, err := s.encKey()
	if err != nil {
		return nil, err
	}
	if newPassword == oldPassword {
		return nil, common.ValidationError("password", "must differ from the current one")
	}

	old, err := cryptox.DeriveKeys(s.Email, oldPassword, s.salt)
	if err != nil {
		return nil, err
	}
	defer old.Wipe()
	if subtle.ConstantTimeCompare(old.EncKey, sessionKey) != 1 {
		return nil, common.ErrInvalidCredential
	}

	next, err := rekey(s.Email, newPassword, items)
	if err != nil {
		return nil, err
	}

	version, err := p.client.ChangePassword(ctx, &api.ChangePasswordRequest{
		OldAuthKey:        old.AuthKey.String(),
		NewSalt:           next.salt,
		NewAuthKey:        next.keys.AuthKey.String(),
		NewEncryptedVault: next.vault,
		NewBackupKeyHash:  next.envelope,
	})
	if err != nil {
		next.keys.Wipe()
		return nil, fmt.Errorf("change password: %w", err)
	}

	s.keys.Wipe()
	s.keys, s.salt = next.keys, next.salt

	rot := &Rotation{PIN: next.pin, Version: version}
	if err := p.cache.saveRotation(ctx, s.Email, next.salt, next.vault, version); err != nil {
		return rot, fmt.Errorf("cache rotation: %w", err)
	}
	return rot, nil
}
