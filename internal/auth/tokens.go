package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/wisbric/compute-gateway/internal/identity"
)

// GenerateDevSecret returns a random 32-byte hex string suitable as a
// TokenIssuer signing key when no secret is configured. It is not persisted
// across restarts, so every process restart invalidates outstanding tokens —
// acceptable for local development, never for production.
func GenerateDevSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// claims is the JSON shape signed into every bearer token. It generalizes
// across the three subject kinds the Authentication Core issues; fields not
// applicable to a given kind are omitted.
type claims struct {
	SubjectKind    identity.SubjectKind `json:"subject_kind"`
	TokenUse       string               `json:"token_use,omitempty"`
	UserID         string               `json:"user_id,omitempty"`
	APIKeyID       string               `json:"api_key_id,omitempty"`
	SessionID      string               `json:"session_id,omitempty"`
	OrganizationID string               `json:"organization_id,omitempty"`
	Scopes         []string             `json:"scopes,omitempty"`
}

// tokenUseAccess and tokenUseRefresh distinguish a user's short-lived access
// token from its long-lived refresh token; both carry SubjectUser.
const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

// TokenIssuer signs and validates bearer tokens with HMAC-SHA256.
type TokenIssuer struct {
	signingKey []byte
	issuer     string
}

// NewTokenIssuer creates a TokenIssuer. secret must be at least 32 bytes.
func NewTokenIssuer(secret, issuer string) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 bytes, got %d", len(secret))
	}
	return &TokenIssuer{signingKey: []byte(secret), issuer: issuer}, nil
}

// IssueUserToken mints a short-lived access token for an organization member.
func (ti *TokenIssuer) IssueUserToken(userID, organizationID uuid.UUID, ttl time.Duration) (string, error) {
	return ti.issue(claims{
		SubjectKind:    identity.SubjectUser,
		TokenUse:       tokenUseAccess,
		UserID:         userID.String(),
		OrganizationID: organizationID.String(),
	}, userID.String(), ttl)
}

// IssueUserRefreshToken mints a long-lived refresh token for an organization
// member. Refresh tokens carry TokenUse "refresh" so ValidateToken rejects
// them as access credentials; only ValidateRefreshToken accepts them.
func (ti *TokenIssuer) IssueUserRefreshToken(userID, organizationID uuid.UUID, ttl time.Duration) (string, error) {
	return ti.issue(claims{
		SubjectKind:    identity.SubjectUser,
		TokenUse:       tokenUseRefresh,
		UserID:         userID.String(),
		OrganizationID: organizationID.String(),
	}, userID.String(), ttl)
}

// IssueAPIKeyToken mints a token for an API key, carrying its scopes.
func (ti *TokenIssuer) IssueAPIKeyToken(apiKeyID, organizationID uuid.UUID, scopes []string, ttl time.Duration) (string, error) {
	return ti.issue(claims{
		SubjectKind:    identity.SubjectAPIKey,
		APIKeyID:       apiKeyID.String(),
		OrganizationID: organizationID.String(),
		Scopes:         scopes,
	}, apiKeyID.String(), ttl)
}

// IssueEndUserToken mints a short-lived token for a claimed session, scoped
// to the resources that session was granted.
func (ti *TokenIssuer) IssueEndUserToken(sessionID uuid.UUID, scopes []string, ttl time.Duration) (string, error) {
	return ti.issue(claims{
		SubjectKind: identity.SubjectEndUser,
		SessionID:   sessionID.String(),
		Scopes:      scopes,
	}, sessionID.String(), ttl)
}

func (ti *TokenIssuer) issue(c claims, subject string, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: ti.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	registered := jwt.Claims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    ti.issuer,
	}

	token, err := jwt.Signed(signer).Claims(registered).Claims(c).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// ValidateToken verifies the token's signature and expiry and resolves it
// into an identity.Identity. Refresh tokens are rejected here — they
// authenticate nothing but the refresh endpoint itself.
func (ti *TokenIssuer) ValidateToken(raw string) (*identity.Identity, error) {
	c, registered, err := ti.parse(raw)
	if err != nil {
		return nil, err
	}
	if c.TokenUse == tokenUseRefresh {
		return nil, fmt.Errorf("refresh token cannot authenticate requests")
	}
	return toIdentity(c, registered), nil
}

// ValidateRefreshToken verifies a refresh token specifically, rejecting
// anything else (access tokens, API-key tokens, end-user tokens).
func (ti *TokenIssuer) ValidateRefreshToken(raw string) (*identity.Identity, error) {
	c, registered, err := ti.parse(raw)
	if err != nil {
		return nil, err
	}
	if c.SubjectKind != identity.SubjectUser || c.TokenUse != tokenUseRefresh {
		return nil, fmt.Errorf("not a refresh token")
	}
	return toIdentity(c, registered), nil
}

func (ti *TokenIssuer) parse(raw string) (claims, jwt.Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return claims{}, jwt.Claims{}, fmt.Errorf("parsing token: %w", err)
	}

	var registered jwt.Claims
	var c claims
	if err := tok.Claims(ti.signingKey, &registered, &c); err != nil {
		return claims{}, jwt.Claims{}, fmt.Errorf("verifying token: %w", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: ti.issuer,
		Time:   time.Now(),
	}, 5*time.Second); err != nil {
		return claims{}, jwt.Claims{}, fmt.Errorf("validating claims: %w", err)
	}
	return c, registered, nil
}

func toIdentity(c claims, registered jwt.Claims) *identity.Identity {
	id := &identity.Identity{
		Kind:     c.SubjectKind,
		Scopes:   c.Scopes,
		Issuer:   registered.Issuer,
		IssuedAt: registered.IssuedAt.Time(),
	}
	if registered.Expiry != nil {
		id.ExpiresAt = registered.Expiry.Time()
	}
	if c.UserID != "" {
		if u, err := uuid.Parse(c.UserID); err == nil {
			id.UserID = &u
		}
	}
	if c.APIKeyID != "" {
		if u, err := uuid.Parse(c.APIKeyID); err == nil {
			id.APIKeyID = &u
		}
	}
	if c.SessionID != "" {
		if u, err := uuid.Parse(c.SessionID); err == nil {
			id.SessionID = &u
		}
	}
	if c.OrganizationID != "" {
		if u, err := uuid.Parse(c.OrganizationID); err == nil {
			id.OrganizationID = &u
		}
	}

	return id
}
