package auth

import (
	"net/http"

	"github.com/wisbric/compute-gateway/internal/apierr"
	"github.com/wisbric/compute-gateway/internal/identity"
)

// RequireAuth returns middleware that extracts a bearer credential from the
// request, validates it against the Authentication Core, and populates the
// request context with the resulting Identity. Requests with no credential,
// or a credential that fails validation, are rejected with 401.
func RequireAuth(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := identity.Extract(r)
			if cred.Source == identity.SourceNone {
				apierr.RespondCode(w, apierr.CodeUnauthorized, "missing bearer credential")
				return
			}

			id, err := svc.ValidateToken(r.Context(), cred.Token)
			if err != nil {
				apierr.RespondCode(w, apierr.CodeUnauthorized, "invalid or expired credential")
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.NewContext(r.Context(), id)))
		})
	}
}

// RequireScope returns middleware that rejects requests whose Identity (set
// by RequireAuth upstream) lacks the given scope. It must be mounted after
// RequireAuth.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identity.FromContext(r.Context())
			if !id.HasScope(scope) {
				apierr.RespondCode(w, apierr.CodeForbidden, "missing required scope: "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole returns middleware that rejects requests whose caller is not
// at least an organization member with the given role. Only meaningful for
// user-subject identities; API keys and end-user sessions are always
// rejected since they carry no organization role.
func RequireRole(store *Store, min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identity.FromContext(r.Context())
			if id == nil || id.Kind != identity.SubjectUser || id.UserID == nil || id.OrganizationID == nil {
				apierr.RespondCode(w, apierr.CodeForbidden, "organization role required")
				return
			}

			membership, err := store.GetMembership(r.Context(), *id.OrganizationID, *id.UserID)
			if err != nil {
				apierr.RespondCode(w, apierr.CodeForbidden, "not a member of this organization")
				return
			}
			if !membership.Role.AtLeast(min) {
				apierr.RespondCode(w, apierr.CodeForbidden, "insufficient role")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
