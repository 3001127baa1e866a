// Package vaults provides the PostgreSQL-backed VaultStore: one opaque
// ciphertext per account behind a monotonic version counter.
package vaults

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/dmitrijs2005/pinvault/internal/dbx"
	"github.com/dmitrijs2005/pinvault/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the vault of a new account at version 1.
func (r *PostgresRepository) Create(ctx context.Context, accountID string, ciphertext []byte) error {
	query :=
		`INSERT INTO vaults (account_id, ciphertext, version)
		 VALUES ($1, $2, 1)
		 `
	if ciphertext == nil {
		ciphertext = []byte{}
	}
	if _, err := r.db.ExecContext(ctx, query, accountID, ciphertext); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Read returns the stored ciphertext and version.
func (r *PostgresRepository) Read(ctx context.Context, accountID string) (*models.VaultRecord, error) {
	query :=
		`SELECT account_id, ciphertext, version, updated_at FROM vaults
		 WHERE account_id = $1
		 `
	v := &models.VaultRecord{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&v.AccountID, &v.Ciphertext, &v.Version, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

// WriteIfVersion is a single compare-and-swap: the row changes only if its
// version still equals expectedVersion. A stale version yields a
// *common.VersionConflictError with the stored version; nothing is written.
func (r *PostgresRepository) WriteIfVersion(ctx context.Context, accountID string, ciphertext []byte, expectedVersion int64) (int64, error) {
	query :=
		`UPDATE vaults
		 SET ciphertext = $2, version = version + 1, updated_at = now()
		 WHERE account_id = $1 AND version = $3
		 RETURNING version
		 `
	var newVersion int64
	err := r.db.QueryRowContext(ctx, query, accountID, ciphertext, expectedVersion).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("db error: %w", err)
	}

	current, err := r.currentVersion(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return 0, &common.VersionConflictError{Current: current}
}

// ReplaceWholesale overwrites the ciphertext without a version check. The
// version still advances by one.
func (r *PostgresRepository) ReplaceWholesale(ctx context.Context, accountID string, ciphertext []byte) (int64, error) {
	query :=
		`UPDATE vaults
		 SET ciphertext = $2, version = version + 1, updated_at = now()
		 WHERE account_id = $1
		 RETURNING version
		 `
	var newVersion int64
	err := r.db.QueryRowContext(ctx, query, accountID, ciphertext).Scan(&newVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return newVersion, nil
}

func (r *PostgresRepository) currentVersion(ctx context.Context, accountID string) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM vaults WHERE account_id = $1`, accountID).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}
