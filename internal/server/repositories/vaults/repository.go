package vaults

import (
	"context"

	"github.com/dmitrijs2005/pinvault/internal/server/models"
)

// Repository is the VaultStore contract.
type Repository interface {
	Create(ctx context.Context, accountID string, ciphertext []byte) error
	Read(ctx context.Context, accountID string) (*models.VaultRecord, error)
	WriteIfVersion(ctx context.Context, accountID string, ciphertext []byte, expectedVersion int64) (int64, error)
	ReplaceWholesale(ctx context.Context, accountID string, ciphertext []byte) (int64, error)
}
