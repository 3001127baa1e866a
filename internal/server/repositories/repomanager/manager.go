package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/pinvault/internal/dbx"
	"github.com/dmitrijs2005/pinvault/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/pinvault/internal/server/repositories/vaults"
)

// RepositoryManager vends repositories bound to a caller-supplied DBTX so the
// same constructors serve both pooled connections and transactions.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Vaults(db dbx.DBTX) vaults.Repository
}
