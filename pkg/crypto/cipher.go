package crypto

import (
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// SecretSize is the exact length a vault secret must have.
const SecretSize = chacha20poly1305.KeySize

// NewCipher builds the XChaCha20-Poly1305 AEAD used for stored credentials.
// The extended nonce lets every encryption draw a fresh random nonce.
func NewCipher(key []byte) (cipher.AEAD, error) {
	if len(key) != SecretSize {
		return nil, fmt.Errorf("crypto: invalid xchacha20poly1305 key length: expected %d, got %d", SecretSize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new xchacha20 cipher: %w", err)
	}
	return aead, nil
}
