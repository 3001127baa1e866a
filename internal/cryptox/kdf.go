// Package cryptox implements the client-side key schedule of PinVault:
// password-based key derivation, vault encryption and the PIN-wrapped
// password backup. Nothing in here talks to the network; the server only ever
// sees AuthKey (hex), vault ciphertext and backup envelopes.
package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/dmitrijs2005/pinvault/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KDFIterations is the PBKDF2-HMAC-SHA256 work factor for the master key.
	KDFIterations = 500_000
	// KeySize is the size of masterKey, AuthKey and EncKey (256 bits).
	KeySize = 32
	// SaltSize is the size of the per-account random KDF salt.
	SaltSize = 32

	authKeyLabel = "Auth-Key-Context"
	encKeyLabel  = "Enc-Key-Context"
)

// Key is raw key material. String renders it as lowercase hex, which is the
// form AuthKey takes on the wire.
type Key []byte

func (k Key) String() string { return hex.EncodeToString(k) }

// DerivedKeySet holds the two keys split off one masterKey. EncKey must never
// be sent anywhere.
type DerivedKeySet struct {
	AuthKey Key
	EncKey  Key
}

// Wipe zeroes both keys.
func (d *DerivedKeySet) Wipe() {
	if d == nil {
		return
	}
	common.WipeByteArray(d.AuthKey)
	common.WipeByteArray(d.EncKey)
}

// NewSalt returns a fresh random KDF salt.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// DeriveMasterKey stretches password with PBKDF2-HMAC-SHA256.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return pbkdf2.Key(password, salt, KDFIterations, KeySize, sha256.New)
}

// DeriveKeys turns (email, password) plus the account's KDF salt into
// {AuthKey, EncKey}. The result is deterministic; the only failure is an
// empty password.
func DeriveKeys(email, password string, salt []byte) (*DerivedKeySet, error) {
	if password == "" {
		return nil, common.ValidationError("password", "is required")
	}

	masterKey := DeriveMasterKey([]byte(password), kdfSalt(email, salt))
	defer common.WipeByteArray(masterKey)

	return &DerivedKeySet{
		AuthKey: labelKey(masterKey, authKeyLabel),
		EncKey:  labelKey(masterKey, encKeyLabel),
	}, nil
}

// kdfSalt binds the random salt to the account email.
func kdfSalt(email string, salt []byte) []byte {
	e := common.NormalizeEmail(email)
	out := make([]byte, 0, len(salt)+1+len(e))
	out = append(out, salt...)
	out = append(out, 0)
	return append(out, e...)
}

func labelKey(masterKey []byte, label string) Key {
	mac := hmac.New(sha256.New, masterKey)
	mac.Write([]byte(label))
	return mac.Sum(nil)
}
