// Package metadata is the local key/value cache of the client: who is logged
// in on this machine, their KDF salt and the last vault ciphertext seen.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyEmail           = "email"
	KeyAccountID       = "account_id"
	KeySalt            = "kdf_salt"
	KeyVaultCiphertext = "vault_ciphertext"
	KeyVaultVersion    = "vault_version"
)

// Repository stores opaque values by key. Get returns (nil, nil) for a
// missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
