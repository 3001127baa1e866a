// Package accounts provides the PostgreSQL-backed account repository.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/dmitrijs2005/pinvault/internal/dbx"
	"github.com/dmitrijs2005/pinvault/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const accountColumns = `id, email, kdf_salt, auth_key_hash, backup_envelope,
	otp_hash, otp_expires_at, reset_nonce, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB, *sql.Conn or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account. A duplicate email yields common.ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (email, kdf_salt, auth_key_hash, backup_envelope)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		account.Email, account.KDFSalt, account.AuthKeyHash, account.BackupEnvelope).
		Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	account.UpdatedAt = account.CreatedAt
	return account, nil
}

// FindByEmail returns common.ErrorNotFound if no account has that email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// FindByID returns common.ErrorNotFound if the id is unknown.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// FindByIDForUpdate is FindByID with a row lock. It must run inside a
// transaction.
func (r *PostgresRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Account, error) {
	var (
		a          models.Account
		otpExpires sql.NullTime
		resetNonce sql.NullString
	)
	err := row.Scan(&a.ID, &a.Email, &a.KDFSalt, &a.AuthKeyHash, &a.BackupEnvelope,
		&a.OtpHash, &otpExpires, &resetNonce, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if otpExpires.Valid {
		t := otpExpires.Time
		a.OtpExpiresAt = &t
	}
	if resetNonce.Valid {
		n := resetNonce.String
		a.ResetNonce = &n
	}
	return &a, nil
}

// UpdateCredentials replaces salt, auth key hash and backup envelope together.
func (r *PostgresRepository) UpdateCredentials(ctx context.Context, id string, c models.Credentials) error {
	query :=
		`UPDATE accounts
		 SET kdf_salt = $2, auth_key_hash = $3, backup_envelope = $4, updated_at = now()
		 WHERE id = $1
		 `
	res, err := r.db.ExecContext(ctx, query, id, c.KDFSalt, c.AuthKeyHash, c.BackupEnvelope)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res, common.ErrorNotFound)
}

// SetOtp stores a pending OTP for email. It reports whether an account matched;
// the statement is the same either way.
func (r *PostgresRepository) SetOtp(ctx context.Context, email string, otpHash []byte, expiresAt time.Time) (bool, error) {
	query :=
		`UPDATE accounts
		 SET otp_hash = $2, otp_expires_at = $3
		 WHERE email = $1
		 `
	res, err := r.db.ExecContext(ctx, query, email, otpHash, expiresAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

// ConsumeOtp clears the pending OTP and arms resetNonce, only if otpHash still
// matches and has not expired at now. Otherwise common.ErrInvalidOtp.
func (r *PostgresRepository) ConsumeOtp(ctx context.Context, id string, otpHash []byte, now time.Time, resetNonce string) error {
	query :=
		`UPDATE accounts
		 SET otp_hash = NULL, otp_expires_at = NULL, reset_nonce = $4
		 WHERE id = $1 AND otp_hash = $2 AND otp_expires_at > $3
		 `
	res, err := r.db.ExecContext(ctx, query, id, otpHash, now, resetNonce)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res, common.ErrInvalidOtp)
}

// ClearOtp drops any pending OTP and reset nonce.
func (r *PostgresRepository) ClearOtp(ctx context.Context, id string) error {
	query :=
		`UPDATE accounts
		 SET otp_hash = NULL, otp_expires_at = NULL, reset_nonce = NULL
		 WHERE id = $1
		 `
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ClearRecovery redeems resetNonce: it clears recovery state only if the nonce
// is still the armed one, else common.ErrorUnauthorized.
func (r *PostgresRepository) ClearRecovery(ctx context.Context, id string, resetNonce string) error {
	query :=
		`UPDATE accounts
		 SET otp_hash = NULL, otp_expires_at = NULL, reset_nonce = NULL
		 WHERE id = $1 AND reset_nonce = $2
		 `
	res, err := r.db.ExecContext(ctx, query, id, resetNonce)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res, common.ErrorUnauthorized)
}

func expectOneRow(res sql.Result, zero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return zero
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
