package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/pinvault/internal/dbx"
	"github.com/dmitrijs2005/pinvault/internal/logging"
	"github.com/dmitrijs2005/pinvault/internal/server/models"
	"github.com/dmitrijs2005/pinvault/internal/server/repositories/repomanager"
)

// VaultService reads and conditionally writes the caller's vault blob.
type VaultService struct {
	pool   dbx.Pool
	repos  repomanager.RepositoryManager
	logger logging.Logger
}

func NewVaultService(pool dbx.Pool, repos repomanager.RepositoryManager, logger logging.Logger) *VaultService {
	return &VaultService{pool: pool, repos: repos, logger: logger.With("module", "vaults")}
}

func (s *VaultService) Read(ctx context.Context, accountID string) (*models.VaultRecord, error) {
	var rec *models.VaultRecord
	err := s.pool.WithConn(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		rec, err = s.repos.Vaults(db).Read(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read vault: %w", err)
	}
	return rec, nil
}

// Write stores ciphertext if the vault is still at expectedVersion. On a
// stale version the error wraps *common.VersionConflictError; the caller
// re-reads, merges and retries.
func (s *VaultService) Write(ctx context.Context, accountID string, ciphertext []byte, expectedVersion int64) (int64, error) {
	var version int64
	err := s.pool.WithConn(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		version, err = s.repos.Vaults(db).WriteIfVersion(ctx, accountID, ciphertext, expectedVersion)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("write vault: %w", err)
	}
	s.logger.Debug(ctx, "vault written", "account_id", accountID, "version", version)
	return version, nil
}
