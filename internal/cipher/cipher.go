// Package cipher encrypts private message text at rest. Text in, opaque
// token out, reversible by the holder of the key; ciphertext is never shown
// to clients and plaintext is never persisted.
package cipher

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Codec is an XChaCha20-Poly1305 wrapper keyed by a server-held secret.
type Codec struct {
	key []byte
}

// New derives a cipher key from the configured secret.
func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("cipher secret is required")
	}
	key := sha256.Sum256([]byte(secret))
	return &Codec{key: key[:]}, nil
}

// Encrypt transforms plaintext into an opaque base64 token. A random nonce
// is prepended, so encrypting the same text twice yields distinct tokens.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("create aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *Codec) Decrypt(token string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return "", ErrInvalidCiphertext
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("create aead: %w", err)
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, sealed[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}
