package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pinvault/internal/client/client"
	"github.com/dmitrijs2005/pinvault/internal/client/models"
	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/dmitrijs2005/pinvault/internal/cryptox"
)

// DefaultApplyAttempts bounds how many times Apply re-reads after losing a
// version race.
const DefaultApplyAttempts = 3

// Snapshot is a decrypted vault together with the version it was read at.
type Snapshot struct {
	Items   models.Items
	Version int64
	// Offline is set when the server was unreachable and the snapshot came
	// from the local cache. Offline snapshots can be read but not saved.
	Offline bool
}

// VaultService reads and writes the encrypted vault blob.
type VaultService struct {
	client client.Client
	cache  cache
}

func NewVaultService(c client.Client, db *sql.DB) *VaultService {
	return &VaultService{client: c, cache: cache{db: db}}
}

// Load reads and decrypts the vault. When the server is unreachable the last
// cached ciphertext of the same account is used instead.
func (v *VaultService) Load(ctx context.Context, s *Session) (*Snapshot, error) {
	encKey, err := s.encKey()
	if err != nil {
		return nil, err
	}

	ct, version, err := v.client.ReadVault(ctx)
	offline := false
	if errors.Is(err, client.ErrUnavailable) {
		p, cerr := v.cache.load(ctx)
		if cerr != nil || p == nil || p.AccountID != s.AccountID || p.VaultVersion == 0 {
			return nil, err
		}
		ct, version, offline = p.VaultCiphertext, p.VaultVersion, true
	} else if err != nil {
		return nil, fmt.Errorf("read vault: %w", err)
	}

	items, err := decryptItems(ct, encKey)
	if err != nil {
		return nil, err
	}

	if !offline {
		if err := v.cache.saveVault(ctx, ct, version); err != nil {
			return nil, fmt.Errorf("cache vault: %w", err)
		}
	}
	return &Snapshot{Items: items, Version: version, Offline: offline}, nil
}

// Save encrypts snap.Items and writes them if the server still holds
// snap.Version. On success snap.Version is advanced. A lost race returns
// *common.VersionConflictError and leaves snap untouched; re-read and
// reapply.
func (v *VaultService) Save(ctx context.Context, s *Session, snap *Snapshot) error {
	if snap.Offline {
		return fmt.Errorf("%w: vault was loaded offline", client.ErrUnavailable)
	}
	encKey, err := s.encKey()
	if err != nil {
		return err
	}

	ct, err := cryptox.EncryptVault(snap.Items, encKey)
	if err != nil {
		return err
	}

	newVersion, err := v.client.WriteVault(ctx, ct, snap.Version)
	if err != nil {
		return fmt.Errorf("write vault: %w", err)
	}
	snap.Version = newVersion

	if err := v.cache.saveVault(ctx, ct, newVersion); err != nil {
		return fmt.Errorf("cache vault: %w", err)
	}
	return nil
}

// Apply runs load, fn, save and repeats from a fresh read when another
// writer got in first, at most attempts times.
func (v *VaultService) Apply(ctx context.Context, s *Session, attempts int, fn func(models.Items) (models.Items, error)) (*Snapshot, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		snap, err := v.Load(ctx, s)
		if err != nil {
			return nil, err
		}
		items, err := fn(snap.Items)
		if err != nil {
			return nil, err
		}
		snap.Items = items

		err = v.Save(ctx, s, snap)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, common.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func decryptItems(ct []byte, encKey []byte) (models.Items, error) {
	var items models.Items
	status, err := cryptox.DecryptVault(ct, encKey, &items)
	if err != nil {
		return nil, err
	}
	if status == cryptox.VaultEmpty || items == nil {
		return models.Items{}, nil
	}
	return items, nil
}
