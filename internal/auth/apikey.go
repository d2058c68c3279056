package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const apiKeyScheme = "bp"

var ErrInvalidAPIKey = errors.New("invalid api key")

// GenerateAPIKey returns a new key of the form bp_<prefix>_<secret>, its lookup prefix and its bcrypt hash.
// Only the prefix and hash are stored.
func GenerateAPIKey() (key, prefix, hash string, err error) {
	p := make([]byte, 6)
	s := make([]byte, 24)
	if _, err = rand.Read(p); err != nil {
		return "", "", "", err
	}
	if _, err = rand.Read(s); err != nil {
		return "", "", "", err
	}
	prefix = hex.EncodeToString(p)
	key = apiKeyScheme + "_" + prefix + "_" + hex.EncodeToString(s)
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", err
	}
	return key, prefix, string(h), nil
}

// APIKeyPrefix extracts the lookup prefix from a presented key.
func APIKeyPrefix(key string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(key), "_", 3)
	if len(parts) != 3 || parts[0] != apiKeyScheme || parts[1] == "" || parts[2] == "" {
		return "", ErrInvalidAPIKey
	}
	return parts[1], nil
}

func CheckAPIKey(hash, key string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		return ErrInvalidAPIKey
	}
	return nil
}
