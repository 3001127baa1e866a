package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/dmitrijs2005/pinvault/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
)

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return aead, nil
}

func newXChaCha(key []byte) (cipher.AEAD, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha20poly1305: %w", err)
	}
	return aead, nil
}

// seal produces header | nonce | ciphertext. The header is authenticated as
// associated data.
func seal(aead cipher.AEAD, header, plaintext []byte) []byte {
	nonce := common.GenerateRandByteArray(aead.NonceSize())
	out := make([]byte, 0, len(header)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, header)
}

// open reverses seal for a blob whose first headerLen bytes are the header.
func open(aead cipher.AEAD, blob []byte, headerLen int) ([]byte, error) {
	ns := aead.NonceSize()
	if len(blob) < headerLen+ns+aead.Overhead() {
		return nil, fmt.Errorf("blob too short: %d bytes", len(blob))
	}
	header := blob[:headerLen]
	nonce := blob[headerLen : headerLen+ns]
	return aead.Open(nil, nonce, blob[headerLen+ns:], header)
}
