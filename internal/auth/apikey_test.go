package auth

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey_PrefixIsFirstEightChars(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}
	if len(key.Prefix) != 8 {
		t.Errorf("len(Prefix) = %d, want 8", len(key.Prefix))
	}
	if key.Prefix != key.Raw[:8] {
		t.Errorf("Prefix = %q, want %q", key.Prefix, key.Raw[:8])
	}
	if !strings.HasPrefix(key.Raw, apiKeyPrefix) {
		t.Errorf("Raw = %q, want prefix %q", key.Raw, apiKeyPrefix)
	}
}

func TestGenerateAPIKey_HashMatchesHashAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}
	if key.Hash != HashAPIKey(key.Raw) {
		t.Error("Hash does not match HashAPIKey(Raw)")
	}
}
