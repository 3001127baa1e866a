package metadata

import (
	"context"
	"fmt"
	"strconv"
)

// Profile is the cached state of the account last used on this machine.
type Profile struct {
	Email     string
	AccountID string
	Salt      []byte

	// VaultCiphertext and VaultVersion are the last copy read from or
	// written to the server.
	VaultCiphertext []byte
	VaultVersion    int64
}

// LoadProfile assembles a Profile from r. It returns (nil, nil) when no
// account has been cached yet.
func LoadProfile(ctx context.Context, r Repository) (*Profile, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	email, ok := all[KeyEmail]
	if !ok {
		return nil, nil
	}

	p := &Profile{
		Email:           string(email),
		AccountID:       string(all[KeyAccountID]),
		Salt:            all[KeySalt],
		VaultCiphertext: all[KeyVaultCiphertext],
	}
	if v, ok := all[KeyVaultVersion]; ok && len(v) > 0 {
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cached vault version %q: %w", v, err)
		}
		p.VaultVersion = n
	}
	return p, nil
}

// SaveProfile writes every field of p. Run it on a transactional handle when
// the fields must change together.
func SaveProfile(ctx context.Context, r Repository, p *Profile) error {
	if err := r.Set(ctx, KeyEmail, []byte(p.Email)); err != nil {
		return err
	}
	if err := r.Set(ctx, KeyAccountID, []byte(p.AccountID)); err != nil {
		return err
	}
	if err := r.Set(ctx, KeySalt, p.Salt); err != nil {
		return err
	}
	return SaveVault(ctx, r, p.VaultCiphertext, p.VaultVersion)
}

// SaveVault caches a vault ciphertext together with its version.
func SaveVault(ctx context.Context, r Repository, ciphertext []byte, version int64) error {
	if err := r.Set(ctx, KeyVaultCiphertext, ciphertext); err != nil {
		return err
	}
	return r.Set(ctx, KeyVaultVersion, []byte(strconv.FormatInt(version, 10)))
}
