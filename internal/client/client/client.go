package client

import (
	"context"

	"github.com/dmitrijs2005/pinvault/internal/api"
)

// Client is the transport contract the client services depend on. Errors are
// mapped to the sentinels in internal/common plus ErrUnavailable.
type Client interface {
	Close() error

	Register(ctx context.Context, req *api.RegisterRequest) (string, error)
	GetSalt(ctx context.Context, email string) ([]byte, error)
	// Login stores the session token for the vault and password calls and
	// returns the account id.
	Login(ctx context.Context, email, authKey string) (string, error)
	Logout()
	// Authenticate checks the credentials and returns a session token without
	// storing it, so the session opened by Login is left alone.
	Authenticate(ctx context.Context, email, authKey string) (string, error)

	ReadVault(ctx context.Context) ([]byte, int64, error)
	// ReadVaultWithToken reads the vault of the session behind token.
	ReadVaultWithToken(ctx context.Context, token string) ([]byte, int64, error)
	WriteVault(ctx context.Context, ciphertext []byte, expectedVersion int64) (int64, error)
	ChangePassword(ctx context.Context, req *api.ChangePasswordRequest) (int64, error)

	SendOtp(ctx context.Context, email string) error
	VerifyOtp(ctx context.Context, email, otp string) (*api.VerifyOtpResponse, error)
	ResetPassword(ctx context.Context, req *api.ResetPasswordRequest) (int64, error)

	Ping(ctx context.Context) error
}
