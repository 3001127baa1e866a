package cryptox

import (
	"encoding/json"
	"errors"
	"fmt"
)

const vaultFormatV1 byte = 1

// ErrDecryptionFailed covers every way a non-empty vault blob can fail to
// open: wrong key, truncation, tampering, unknown format, bad JSON.
var ErrDecryptionFailed = errors.New("vault decryption failed")

// VaultStatus tells a successfully decrypted vault apart from one that has
// never been written.
type VaultStatus int

const (
	VaultOK VaultStatus = iota
	VaultEmpty
)

// EncryptVault JSON-encodes items and seals them with AES-256-GCM under
// encKey. Output: 0x01 | nonce(12) | ciphertext+tag.
func EncryptVault(items any, encKey []byte) ([]byte, error) {
	plaintext, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode vault: %w", err)
	}
	aead, err := newAESGCM(encKey)
	if err != nil {
		return nil, err
	}
	return seal(aead, []byte{vaultFormatV1}, plaintext), nil
}

// DecryptVault opens a blob made by EncryptVault and unmarshals it into v.
// An empty blob yields VaultEmpty and leaves v untouched; any other failure
// yields ErrDecryptionFailed.
func DecryptVault(ciphertext, encKey []byte, v any) (VaultStatus, error) {
	if len(ciphertext) == 0 {
		return VaultEmpty, nil
	}
	if ciphertext[0] != vaultFormatV1 {
		return VaultOK, fmt.Errorf("%w: unknown format %d", ErrDecryptionFailed, ciphertext[0])
	}
	aead, err := newAESGCM(encKey)
	if err != nil {
		return VaultOK, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	plaintext, err := open(aead, ciphertext, 1)
	if err != nil {
		return VaultOK, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return VaultOK, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return VaultOK, nil
}
