// Package auth guards the ops API with a static API key whose bcrypt hash
// is kept in configuration.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	apiKeyBytes = 32
	hashCost    = 12
)

// GenerateAPIKey returns 32 random bytes, hex encoded.
func GenerateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate API key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashAPIKey returns the bcrypt hash to put in http.api_key_hash.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), hashCost)
	if err != nil {
		return "", fmt.Errorf("hash API key: %w", err)
	}
	return string(hash), nil
}

// VerifyAPIKey returns nil if key matches hash.
func VerifyAPIKey(hash, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}
