package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/pinvault/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/pinvault/internal/dbx"
)

// cache wraps the local metadata store. Multi-key updates run in one
// transaction so a crash never leaves a salt from one account next to the
// email of another.
type cache struct {
	db *sql.DB
}

func (c cache) repo(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}

func (c cache) load(ctx context.Context) (*metadata.Profile, error) {
	return metadata.LoadProfile(ctx, c.repo(c.db))
}

// saveLogin records who logged in. Switching to a different account drops
// whatever the previous one left behind.
func (c cache) saveLogin(ctx context.Context, email, accountID string, salt []byte) error {
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := c.repo(tx)
		prev, err := metadata.LoadProfile(ctx, r)
		if err != nil {
			return err
		}
		p := &metadata.Profile{Email: email, AccountID: accountID, Salt: salt}
		if prev != nil && prev.AccountID == accountID {
			p.VaultCiphertext, p.VaultVersion = prev.VaultCiphertext, prev.VaultVersion
		} else if err := r.Clear(ctx); err != nil {
			return err
		}
		return metadata.SaveProfile(ctx, r, p)
	})
}

func (c cache) saveVault(ctx context.Context, ciphertext []byte, version int64) error {
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.SaveVault(ctx, c.repo(tx), ciphertext, version)
	})
}

// saveRotation stores the salt and vault written by a password change or
// reset of email. A cache holding another account is left as it is.
func (c cache) saveRotation(ctx context.Context, email string, salt, ciphertext []byte, version int64) error {
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := c.repo(tx)
		p, err := metadata.LoadProfile(ctx, r)
		if err != nil {
			return err
		}
		if p == nil || p.Email != email {
			return nil
		}
		if err := r.Set(ctx, metadata.KeySalt, salt); err != nil {
			return err
		}
		return metadata.SaveVault(ctx, r, ciphertext, version)
	})
}

func (c cache) clear(ctx context.Context) error {
	return c.repo(c.db).Clear(ctx)
}
