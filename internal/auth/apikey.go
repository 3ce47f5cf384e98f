package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// apiKeyPrefix identifies all raw API keys issued by this service —
// identifiable at a glance in logs and leaked-credential scans.
const apiKeyPrefix = "sk_"

// GeneratedAPIKey holds a freshly minted API key: the raw secret (shown to
// the caller exactly once) and its derived, storable fields.
type GeneratedAPIKey struct {
	Raw    string
	Hash   string
	Prefix string
}

// GenerateAPIKey creates a new random API key with 32 bytes of entropy.
func GenerateAPIKey() (GeneratedAPIKey, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return GeneratedAPIKey{}, fmt.Errorf("reading random bytes: %w", err)
	}

	raw := apiKeyPrefix + hex.EncodeToString(b)
	return GeneratedAPIKey{
		Raw:    raw,
		Hash:   HashAPIKey(raw),
		Prefix: raw[:8],
	}, nil
}

// HashAPIKey returns the SHA-256 hex digest of a raw API key, as stored in
// the database. API keys are never stored in plaintext.
func HashAPIKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// generateOpaqueToken creates a random, prefixed opaque token in the same
// shape as an API key but under a caller-supplied prefix, for credentials
// that aren't API keys (e.g. claimable sessions).
func generateOpaqueToken(prefix string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return prefix + hex.EncodeToString(b), nil
}
