// Package password provides salted password hashing with a reuse-prevention
// history.
package password

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Entry is one salted hash. Users keep an append-only history of these; the
// newest entry is the live credential's twin.
type Entry struct {
	Salt string `json:"salt"`
	Hash string `json:"hash"`
}

// GenSalt creates a fresh random salt.
func GenSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Hash digests plaintext with the given salt.
func Hash(plaintext, salt string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext+salt), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// Compare reports whether plaintext+salt matches the stored digest.
func Compare(plaintext, salt, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext+salt)) == nil
}

// NewEntry salts and hashes plaintext into a history entry.
func NewEntry(plaintext string) (Entry, error) {
	salt, err := GenSalt()
	if err != nil {
		return Entry{}, err
	}
	hash, err := Hash(plaintext, salt)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Salt: salt, Hash: hash}, nil
}

// Clash reports whether candidate matches any entry in the history. Cost is
// linear in history length; histories are expected to stay small.
func Clash(candidate string, history []Entry) bool {
	for _, entry := range history {
		if Compare(candidate, entry.Salt, entry.Hash) {
			return true
		}
	}
	return false
}
