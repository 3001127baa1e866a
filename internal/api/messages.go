package api

import (
	"encoding/hex"

	"github.com/dmitrijs2005/pinvault/internal/common"
)

const (
	// AuthKeyHexLen is the length of a hex-encoded 256-bit AuthKey.
	AuthKeyHexLen = 64
	// MinSaltLen is the shortest KDF salt the server accepts.
	MinSaltLen = 16
	// MaxBlobLen bounds vault ciphertexts and backup envelopes.
	MaxBlobLen = 16 << 20
)

type RegisterRequest struct {
	Email               string `json:"email"`
	Salt                []byte `json:"salt"`
	AuthKey             string `json:"authKey"`
	BackupKeyHash       []byte `json:"backupKeyHash"`
	InitVaultCiphertext []byte `json:"initVaultCiphertext"`
}

type RegisterResponse struct {
	AccountID string `json:"accountId"`
}

type GetSaltRequest struct {
	Email string `json:"email"`
}

type GetSaltResponse struct {
	Salt []byte `json:"salt"`
}

type LoginRequest struct {
	Email   string `json:"email"`
	AuthKey string `json:"authKey"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	AccountID string `json:"accountId"`
}

type ReadVaultRequest struct{}

type ReadVaultResponse struct {
	Ciphertext []byte `json:"ciphertext"`
	Version    int64  `json:"version"`
}

type WriteVaultRequest struct {
	Ciphertext      []byte `json:"ciphertext"`
	ExpectedVersion int64  `json:"expectedVersion"`
}

type WriteVaultResponse struct {
	NewVersion int64 `json:"newVersion"`
}

type ChangePasswordRequest struct {
	OldAuthKey        string `json:"oldAuthKey"`
	NewSalt           []byte `json:"newSalt"`
	NewAuthKey        string `json:"newAuthKey"`
	NewEncryptedVault []byte `json:"newEncryptedVault"`
	NewBackupKeyHash  []byte `json:"newBackupKeyHash"`
}

// ChangePasswordResponse also reports the vault version after the rewrite.
type ChangePasswordResponse struct {
	OK         bool  `json:"ok"`
	NewVersion int64 `json:"newVersion"`
}

type SendOtpRequest struct {
	Email string `json:"email"`
}

type SendOtpResponse struct {
	OK bool `json:"ok"`
}

type VerifyOtpRequest struct {
	Email string `json:"email"`
	Otp   string `json:"otp"`
}

type VerifyOtpResponse struct {
	BackupEnvelope []byte `json:"backupEnvelope"`
	ResetToken     string `json:"resetToken"`
}

type ResetPasswordRequest struct {
	ResetToken        string `json:"resetToken"`
	NewSalt           []byte `json:"newSalt"`
	NewAuthKey        string `json:"newAuthKey"`
	NewBackupKeyHash  []byte `json:"newBackupKeyHash"`
	NewEncryptedVault []byte `json:"newEncryptedVault"`
}

type ResetPasswordResponse struct {
	OK         bool  `json:"ok"`
	NewVersion int64 `json:"newVersion"`
}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

func (r *RegisterRequest) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if err := validateSalt("salt", r.Salt); err != nil {
		return err
	}
	if err := validateAuthKey("authKey", r.AuthKey); err != nil {
		return err
	}
	if err := validateBlob("backupKeyHash", r.BackupKeyHash, true); err != nil {
		return err
	}
	return validateBlob("initVaultCiphertext", r.InitVaultCiphertext, false)
}

func (r *GetSaltRequest) Validate() error {
	return validateEmail(r.Email)
}

func (r *LoginRequest) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	return validateAuthKey("authKey", r.AuthKey)
}

func (r *WriteVaultRequest) Validate() error {
	if r.ExpectedVersion < 1 {
		return common.ValidationError("expectedVersion", "must be at least 1")
	}
	return validateBlob("ciphertext", r.Ciphertext, true)
}

func (r *ChangePasswordRequest) Validate() error {
	if err := validateAuthKey("oldAuthKey", r.OldAuthKey); err != nil {
		return err
	}
	if err := validateSalt("newSalt", r.NewSalt); err != nil {
		return err
	}
	if err := validateAuthKey("newAuthKey", r.NewAuthKey); err != nil {
		return err
	}
	if err := validateBlob("newEncryptedVault", r.NewEncryptedVault, true); err != nil {
		return err
	}
	return validateBlob("newBackupKeyHash", r.NewBackupKeyHash, true)
}

func (r *SendOtpRequest) Validate() error {
	return validateEmail(r.Email)
}

func (r *VerifyOtpRequest) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if len(r.Otp) != 6 {
		return common.ValidationError("otp", "must have 6 digits")
	}
	for _, c := range r.Otp {
		if c < '0' || c > '9' {
			return common.ValidationError("otp", "must be numeric")
		}
	}
	return nil
}

func (r *ResetPasswordRequest) Validate() error {
	if r.ResetToken == "" {
		return common.ValidationError("resetToken", "is required")
	}
	if err := validateSalt("newSalt", r.NewSalt); err != nil {
		return err
	}
	if err := validateAuthKey("newAuthKey", r.NewAuthKey); err != nil {
		return err
	}
	if err := validateBlob("newBackupKeyHash", r.NewBackupKeyHash, true); err != nil {
		return err
	}
	return validateBlob("newEncryptedVault", r.NewEncryptedVault, true)
}

func validateEmail(email string) error {
	return common.ValidateEmail(common.NormalizeEmail(email))
}

func validateSalt(field string, salt []byte) error {
	if len(salt) < MinSaltLen {
		return common.ValidationError(field, "is too short")
	}
	return nil
}

func validateAuthKey(field, key string) error {
	if len(key) != AuthKeyHexLen {
		return common.ValidationError(field, "must be 64 hex characters")
	}
	if _, err := hex.DecodeString(key); err != nil {
		return common.ValidationError(field, "must be hex")
	}
	return nil
}

func validateBlob(field string, b []byte, required bool) error {
	if required && len(b) == 0 {
		return common.ValidationError(field, "is required")
	}
	if len(b) > MaxBlobLen {
		return common.ValidationError(field, "is too large")
	}
	return nil
}
