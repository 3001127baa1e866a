package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/pinvault/internal/server/models"
)

// Repository is the account collaborator used by the services.
type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id string) (*models.Account, error)
	UpdateCredentials(ctx context.Context, id string, c models.Credentials) error
	SetOtp(ctx context.Context, email string, otpHash []byte, expiresAt time.Time) (bool, error)
	ConsumeOtp(ctx context.Context, id string, otpHash []byte, now time.Time, resetNonce string) error
	ClearOtp(ctx context.Context, id string) error
	ClearRecovery(ctx context.Context, id string, resetNonce string) error
}
