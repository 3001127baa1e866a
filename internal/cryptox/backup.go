package cryptox

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/pinvault/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// PINLength is the number of digits in a generated recovery PIN.
	PINLength = 6

	backupFormatV1 byte = 1
	pinSaltSize         = 16
	checkMarker         = "VALID_BACKUP"

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

type backupPayload struct {
	Check string `json:"check"`
	Key   string `json:"key"`
}

// GeneratePIN returns PINLength uniformly random decimal digits.
func GeneratePIN() (string, error) {
	pin, err := common.RandomDigits(PINLength)
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return pin, nil
}

// ValidatePIN accepts 4 to 12 decimal digits.
func ValidatePIN(pin string) error {
	if len(pin) < 4 || len(pin) > 12 {
		return common.ValidationError("pin", "must have 4 to 12 digits")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return common.ValidationError("pin", "must be numeric")
		}
	}
	return nil
}

func derivePINKey(pin string, salt []byte) []byte {
	return argon2.IDKey([]byte(pin), salt, argon2Time, argon2Memory, argon2Threads, KeySize)
}

// WrapPassword seals the master password under a key stretched from pin.
// Output: 0x01 | salt(16) | nonce(24) | XChaCha20-Poly1305 ciphertext.
func WrapPassword(password, pin string) ([]byte, error) {
	if password == "" {
		return nil, common.ValidationError("password", "is required")
	}
	if err := ValidatePIN(pin); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(backupPayload{Check: checkMarker, Key: password})
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}
	defer common.WipeByteArray(payload)

	salt := common.GenerateRandByteArray(pinSaltSize)
	pinKey := derivePINKey(pin, salt)
	defer common.WipeByteArray(pinKey)

	aead, err := newXChaCha(pinKey)
	if err != nil {
		return nil, err
	}

	header := make([]byte, 0, 1+pinSaltSize)
	header = append(header, backupFormatV1)
	header = append(header, salt...)
	return seal(aead, header, payload), nil
}

// UnwrapPassword opens an envelope made by WrapPassword. Wrong PIN, corrupt
// blob and missing marker all return ("", false).
func UnwrapPassword(envelope []byte, pin string) (string, bool) {
	headerLen := 1 + pinSaltSize
	if len(envelope) < headerLen || envelope[0] != backupFormatV1 {
		return "", false
	}

	pinKey := derivePINKey(pin, envelope[1:headerLen])
	defer common.WipeByteArray(pinKey)

	aead, err := newXChaCha(pinKey)
	if err != nil {
		return "", false
	}
	plaintext, err := open(aead, envelope, headerLen)
	if err != nil {
		return "", false
	}
	defer common.WipeByteArray(plaintext)

	var p backupPayload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return "", false
	}
	if p.Check != checkMarker || p.Key == "" {
		return "", false
	}
	return p.Key, true
}
