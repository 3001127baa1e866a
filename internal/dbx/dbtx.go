// Package dbx provides the small DB abstractions shared by repositories:
// a minimal interface (DBTX) implemented by *sql.DB, *sql.Conn and *sql.Tx,
// transaction helpers, and Pool, the storage handle services get injected.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the subset of database/sql used by our repos.
// *sql.DB, *sql.Conn and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner is implemented by *sql.DB and *sql.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db TxBeginner, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// Pool hands out storage handles scoped to a single operation. The handle
// passed to fn must not be retained after fn returns.
type Pool interface {
	// WithConn acquires a connection, runs fn on it and releases it.
	WithConn(ctx context.Context, fn func(ctx context.Context, db DBTX) error) error
	// WithTx runs fn inside one transaction: commit if fn returns nil,
	// rollback otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}

// SQLPool is a Pool over a *sql.DB connection pool.
type SQLPool struct {
	db     *sql.DB
	txOpts *sql.TxOptions
}

// NewSQLPool wraps db. Transactions use opts (nil means driver defaults).
func NewSQLPool(db *sql.DB, opts *sql.TxOptions) *SQLPool {
	return &SQLPool{db: db, txOpts: opts}
}

// DB exposes the underlying pool for migrations and shutdown.
func (p *SQLPool) DB() *sql.DB {
	return p.db
}

// WithConn pins one connection for the duration of fn.
func (p *SQLPool) WithConn(ctx context.Context, fn func(ctx context.Context, db DBTX) error) error {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	return fn(ctx, conn)
}

// WithTx pins one connection and runs fn inside a transaction on it.
func (p *SQLPool) WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	return WithTx(ctx, conn, p.txOpts, fn)
}

// Close closes the underlying pool.
func (p *SQLPool) Close() error {
	return p.db.Close()
}
