package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/pinvault/internal/api"
	"github.com/dmitrijs2005/pinvault/internal/client/client"
	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/dmitrijs2005/pinvault/internal/cryptox"
)

// Recovered holds the master password unwrapped from the backup envelope and
// the short-lived reset token that came with it.
type Recovered struct {
	Email      string
	Password   string
	ResetToken string
}

// RecoveryService walks the OTP and PIN recovery: request a code, trade
// code plus PIN for the old password, optionally reset to a new one.
type RecoveryService struct {
	client client.Client
	cache  cache
}

func NewRecoveryService(c client.Client, db *sql.DB) *RecoveryService {
	return &RecoveryService{client: c, cache: cache{db: db}}
}

// RequestOtp asks the server to mail a one-time code. The server answers the
// same way whether or not the account exists.
func (r *RecoveryService) RequestOtp(ctx context.Context, email string) error {
	email = common.NormalizeEmail(email)
	if err := common.ValidateEmail(email); err != nil {
		return err
	}
	if err := r.client.SendOtp(ctx, email); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	return nil
}

// Recover verifies otp and opens the returned envelope with pin. A wrong PIN
// is ErrInvalidCredential; the code is spent either way.
func (r *RecoveryService) Recover(ctx context.Context, email, otp, pin string) (*Recovered, error) {
	email = common.NormalizeEmail(email)
	if err := common.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := cryptox.ValidatePIN(pin); err != nil {
		return nil, err
	}

	resp, err := r.client.VerifyOtp(ctx, email, otp)
	if err != nil {
		return nil, fmt.Errorf("verify otp: %w", err)
	}

	password, ok := cryptox.UnwrapPassword(resp.BackupEnvelope, pin)
	if !ok {
		return nil, common.ErrInvalidCredential
	}
	return &Recovered{Email: email, Password: password, ResetToken: resp.ResetToken}, nil
}

// ResetPassword replaces the master password using the reset token. The
// current vault is read with the recovered password, re-encrypted under
// newPassword and submitted together with new salt, AuthKey and PIN envelope.
// The vault is read with a throwaway token: an open session and the cached
// profile of another account are not touched.
func (r *RecoveryService) ResetPassword(ctx context.Context, rec *Recovered, newPassword string) (*Rotation, error) {
	if rec == nil || rec.ResetToken == "" {
		return nil, common.ErrorUnauthorized
	}
	if newPassword == rec.Password {
		return nil, common.ValidationError("password", "must differ from the recovered one")
	}
	email := common.NormalizeEmail(rec.Email)

	salt, err := r.client.GetSalt(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get salt: %w", err)
	}
	keys, err := cryptox.DeriveKeys(email, rec.Password, salt)
	if err != nil {
		return nil, err
	}
	defer keys.Wipe()

	token, err := r.client.Authenticate(ctx, email, keys.AuthKey.String())
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	ct, _, err := r.client.ReadVaultWithToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("read vault: %w", err)
	}
	items, err := decryptItems(ct, keys.EncKey)
	if err != nil {
		return nil, err
	}

	next, err := rekey(email, newPassword, items)
	if err != nil {
		return nil, err
	}
	defer next.keys.Wipe()

	version, err := r.client.ResetPassword(ctx, &api.ResetPasswordRequest{
		ResetToken:        rec.ResetToken,
		NewSalt:           next.salt,
		NewAuthKey:        next.keys.AuthKey.String(),
		NewBackupKeyHash:  next.envelope,
		NewEncryptedVault: next.vault,
	})
	if err != nil {
		return nil, fmt.Errorf("reset password: %w", err)
	}
	rec.ResetToken = ""

	rot := &Rotation{PIN: next.pin, Version: version}
	if err := r.cache.saveRotation(ctx, email, next.salt, next.vault, version); err != nil {
		return rot, fmt.Errorf("cache rotation: %w", err)
	}
	return rot, nil
}
