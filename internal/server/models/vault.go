package models

import "time"

// VaultRecord is the opaque encrypted vault of one account. Version starts at
// 1 and grows by exactly one on every accepted write.
type VaultRecord struct {
	AccountID  string
	Ciphertext []byte
	Version    int64
	UpdatedAt  time.Time
}
