package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/compute-gateway/internal/identity"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	ti, err := NewTokenIssuer("a-signing-secret-at-least-32-bytes-long", "compute-gateway-test")
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	return ti
}

func TestIssueUserToken_ValidatesToUserIdentity(t *testing.T) {
	ti := newTestIssuer(t)
	userID, orgID := uuid.New(), uuid.New()

	raw, err := ti.IssueUserToken(userID, orgID, time.Minute)
	if err != nil {
		t.Fatalf("IssueUserToken() error = %v", err)
	}

	id, err := ti.ValidateToken(raw)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if id.Kind != identity.SubjectUser {
		t.Errorf("Kind = %q, want %q", id.Kind, identity.SubjectUser)
	}
	if id.UserID == nil || *id.UserID != userID {
		t.Errorf("UserID = %v, want %v", id.UserID, userID)
	}
	if id.OrganizationID == nil || *id.OrganizationID != orgID {
		t.Errorf("OrganizationID = %v, want %v", id.OrganizationID, orgID)
	}
}

func TestValidateToken_RejectsRefreshToken(t *testing.T) {
	ti := newTestIssuer(t)
	userID, orgID := uuid.New(), uuid.New()

	refresh, err := ti.IssueUserRefreshToken(userID, orgID, time.Hour)
	if err != nil {
		t.Fatalf("IssueUserRefreshToken() error = %v", err)
	}

	if _, err := ti.ValidateToken(refresh); err == nil {
		t.Error("ValidateToken() on a refresh token succeeded, want error")
	}
}

func TestValidateRefreshToken_AcceptsOnlyRefreshTokens(t *testing.T) {
	ti := newTestIssuer(t)
	userID, orgID := uuid.New(), uuid.New()

	access, err := ti.IssueUserToken(userID, orgID, time.Minute)
	if err != nil {
		t.Fatalf("IssueUserToken() error = %v", err)
	}
	if _, err := ti.ValidateRefreshToken(access); err == nil {
		t.Error("ValidateRefreshToken() on an access token succeeded, want error")
	}

	refresh, err := ti.IssueUserRefreshToken(userID, orgID, time.Hour)
	if err != nil {
		t.Fatalf("IssueUserRefreshToken() error = %v", err)
	}
	id, err := ti.ValidateRefreshToken(refresh)
	if err != nil {
		t.Fatalf("ValidateRefreshToken() error = %v", err)
	}
	if id.UserID == nil || *id.UserID != userID {
		t.Errorf("UserID = %v, want %v", id.UserID, userID)
	}
}

func TestValidateToken_RejectsExpiredToken(t *testing.T) {
	ti := newTestIssuer(t)

	raw, err := ti.IssueAPIKeyToken(uuid.New(), uuid.New(), []string{"read"}, -time.Minute)
	if err != nil {
		t.Fatalf("IssueAPIKeyToken() error = %v", err)
	}
	if _, err := ti.ValidateToken(raw); err == nil {
		t.Error("ValidateToken() on an expired token succeeded, want error")
	}
}

func TestIssueEndUserToken_CarriesSessionIDAndScopes(t *testing.T) {
	ti := newTestIssuer(t)
	sessionID := uuid.New()

	raw, err := ti.IssueEndUserToken(sessionID, []string{"compute:read"}, time.Minute)
	if err != nil {
		t.Fatalf("IssueEndUserToken() error = %v", err)
	}

	id, err := ti.ValidateToken(raw)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if id.Kind != identity.SubjectEndUser {
		t.Errorf("Kind = %q, want %q", id.Kind, identity.SubjectEndUser)
	}
	if id.SessionID == nil || *id.SessionID != sessionID {
		t.Errorf("SessionID = %v, want %v", id.SessionID, sessionID)
	}
	if len(id.Scopes) != 1 || id.Scopes[0] != "compute:read" {
		t.Errorf("Scopes = %v, want [compute:read]", id.Scopes)
	}
}
