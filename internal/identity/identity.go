// Package identity defines the authenticated-caller value threaded through
// the gateway's request context, and the pure extraction logic that reads a
// raw credential off an inbound request.
package identity

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubjectKind distinguishes the three bearer-token subject shapes the
// Authentication Core issues.
type SubjectKind string

const (
	SubjectUser    SubjectKind = "user"
	SubjectAPIKey  SubjectKind = "api_key"
	SubjectEndUser SubjectKind = "end_user"
)

// Identity is the authenticated caller, resolved from a validated bearer
// token. Fields not meaningful for a given SubjectKind are left zero.
type Identity struct {
	Kind           SubjectKind
	UserID         *uuid.UUID
	APIKeyID       *uuid.UUID
	SessionID      *uuid.UUID
	OrganizationID *uuid.UUID
	Scopes         []string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	Issuer         string
}

// HasScope reports whether the identity carries the given scope. An empty
// Scopes list is treated as "all scopes" for the user subject kind, since
// organization members authenticate with their role rather than a scope
// grant.
func (id *Identity) HasScope(scope string) bool {
	if id == nil {
		return false
	}
	if id.Kind == SubjectUser && len(id.Scopes) == 0 {
		return true
	}
	for _, s := range id.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying id.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the Identity stored by NewContext, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}

// Credential is the raw, unvalidated bearer value pulled off a request by
// Extract, along with where it was found.
type Credential struct {
	Token  string
	Source Source
}

// Source records where a raw credential was read from.
type Source string

const (
	SourceAuthorizationHeader Source = "authorization_header"
	SourceQueryParam          Source = "query_param"
	SourceNone                Source = "none"
)

const bearerPrefix = "Bearer "

// Extract reads a raw bearer credential off an HTTP request. It performs no
// I/O and no validation — it only locates the token string so the caller can
// hand it to the Authentication Core for verification. The Authorization
// header takes precedence; the "token" query parameter is the fallback used
// by WebSocket upgrade requests, which cannot set arbitrary headers from a
// browser.
func Extract(r *http.Request) Credential {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		tok := strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
		if tok != "" {
			return Credential{Token: tok, Source: SourceAuthorizationHeader}
		}
	}

	if tok := r.URL.Query().Get("token"); tok != "" {
		return Credential{Token: tok, Source: SourceQueryParam}
	}

	return Credential{Source: SourceNone}
}
