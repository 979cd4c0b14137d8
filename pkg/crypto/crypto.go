// Package crypto provides the credential vault and secret generation.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
)

var (
	ErrInvalidSecret     = errors.New("crypto: invalid secret")
	ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")
	ErrDecryptionFailed  = errors.New("crypto: decryption failed")
)

const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789~!@#$%^&*()_+-={}|[]:<>?,./"

// GenerateSecret returns a random printable secret of SecretSize characters.
func GenerateSecret() (string, error) {
	limit := big.NewInt(int64(len(secretAlphabet)))
	b := make([]byte, SecretSize)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("crypto: generate secret: %w", err)
		}
		b[i] = secretAlphabet[n.Int64()]
	}
	return string(b), nil
}

// Vault encrypts and decrypts stored external credentials with a
// hot-swappable secret. Safe for concurrent use.
type Vault struct {
	mu   sync.RWMutex
	aead cipher.AEAD
}

// NewVault creates a vault keyed by secret, which must be SecretSize bytes.
func NewVault(secret string) (*Vault, error) {
	aead, err := NewCipher([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}
	return &Vault{aead: aead}, nil
}

// SetSecret replaces the secret. Secrets of the wrong length are ignored
// and SetSecret reports false.
func (v *Vault) SetSecret(secret string) bool {
	aead, err := NewCipher([]byte(secret))
	if err != nil {
		return false
	}
	v.mu.Lock()
	v.aead = aead
	v.mu.Unlock()
	return true
}

// Encrypt seals plaintext and returns base64(nonce | ciphertext | tag).
func (v *Vault) Encrypt(plaintext string) (string, error) {
	v.mu.RLock()
	aead := v.aead
	v.mu.RUnlock()

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Malformed input or a wrong
// secret yields the empty string: an undecryptable credential is treated
// as absent.
func (v *Vault) Decrypt(blob string) string {
	plaintext, err := v.Open(blob)
	if err != nil {
		return ""
	}
	return plaintext
}

// Open is Decrypt with the failure reason preserved.
func (v *Vault) Open(blob string) (string, error) {
	v.mu.RLock()
	aead := v.aead
	v.mu.RUnlock()

	data, err := base64.RawURLEncoding.DecodeString(blob)
	if err != nil || len(data) < aead.NonceSize()+aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
