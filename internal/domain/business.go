package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Business is the tenant boundary. Every knowledge entry, conversation
// and job belongs to exactly one business.
type Business struct {
	ID        string
	Name      string
	Website   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (b *Business) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return &DomainError{Code: ErrCodeValidation, Message: "business name is required"}
	}
	return nil
}

const apiKeyPrefix = "cvf_"

// APIKey authenticates widget and dashboard traffic for one business.
// Only the SHA-256 hash is stored; the raw key is shown once at creation.
type APIKey struct {
	ID         string
	BusinessID string
	Name       string
	KeyHash    string
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}

// GenerateAPIKey returns a fresh raw key and its storable hash.
func GenerateAPIKey() (raw, hash string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = apiKeyPrefix + hex.EncodeToString(buf)
	return raw, HashAPIKey(raw), nil
}

// HashAPIKey maps a raw key to the hash stored in the database.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
