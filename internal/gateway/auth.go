package gateway

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/compute-gateway/internal/apierr"
	"github.com/wisbric/compute-gateway/internal/auth"
	"github.com/wisbric/compute-gateway/internal/httpserver"
	"github.com/wisbric/compute-gateway/internal/identity"
)

type userView struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func toUserView(u auth.User) userView {
	return userView{ID: u.ID.String(), Email: u.Email, DisplayName: u.DisplayName}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.deps.Auth.RegisterUser(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicate) {
			apierr.RespondCode(w, apierr.CodeConflict, "email already registered")
			return
		}
		h.deps.Logger.Error("registering user", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "registration failed")
		return
	}

	httpserver.Respond(w, http.StatusCreated, toUserView(u))
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenPairResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	User         userView `json:"user"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ip := clientIP(r)
	if h.deps.Login != nil {
		result, err := h.deps.Login.Check(r.Context(), ip)
		if err != nil {
			h.deps.Logger.Error("checking login rate limit", "error", err)
		} else if !result.Allowed {
			apierr.RespondCode(w, apierr.CodeRateLimited, "too many login attempts, try again later")
			return
		}
	}

	u, access, refresh, err := h.deps.Auth.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.deps.Login != nil {
			_ = h.deps.Login.Record(r.Context(), ip)
		}
		if errors.Is(err, auth.ErrInvalidCredentials) {
			apierr.RespondCode(w, apierr.CodeUnauthorized, "invalid credentials")
			return
		}
		h.deps.Logger.Error("authenticating user", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "login failed")
		return
	}
	if h.deps.Login != nil {
		_ = h.deps.Login.Reset(r.Context(), ip)
	}

	httpserver.Respond(w, http.StatusOK, tokenPairResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         toUserView(u),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	access, refresh, err := h.deps.Auth.RefreshUserToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			apierr.RespondCode(w, apierr.CodeUnauthorized, "invalid or expired refresh token")
			return
		}
		h.deps.Logger.Error("refreshing token", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "refresh failed")
		return
	}

	httpserver.Respond(w, http.StatusOK, refreshResponse{AccessToken: access, RefreshToken: refresh})
}

type createAPIKeyRequest struct {
	Description string     `json:"description" validate:"required"`
	Scopes      []string   `json:"scopes"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type apiKeyResponse struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Scopes      []string   `json:"scopes"`
	KeyPrefix   string     `json:"key_prefix"`
	RawKey      string     `json:"raw_key,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (h *handlers) createAPIKey(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		apierr.RespondCode(w, apierr.CodeBadRequest, "invalid organization id")
		return
	}

	var req createAPIKeyRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.deps.Auth.CreateAPIKey(r.Context(), orgID, req.Description, req.Scopes, req.ExpiresAt)
	if err != nil {
		h.deps.Logger.Error("creating api key", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to create api key")
		return
	}

	httpserver.Respond(w, http.StatusCreated, apiKeyResponse{
		ID:          result.APIKey.ID.String(),
		Description: result.APIKey.Description,
		Scopes:      result.APIKey.Scopes,
		KeyPrefix:   result.APIKey.KeyPrefix,
		RawKey:      result.RawKey,
		ExpiresAt:   result.APIKey.ExpiresAt,
		CreatedAt:   result.APIKey.CreatedAt,
	})
}

func (h *handlers) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		apierr.RespondCode(w, apierr.CodeBadRequest, "invalid organization id")
		return
	}

	keys, err := h.deps.Auth.ListAPIKeys(r.Context(), orgID)
	if err != nil {
		h.deps.Logger.Error("listing api keys", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to list api keys")
		return
	}

	out := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, apiKeyResponse{
			ID:          k.ID.String(),
			Description: k.Description,
			Scopes:      k.Scopes,
			KeyPrefix:   k.KeyPrefix,
			ExpiresAt:   k.ExpiresAt,
			CreatedAt:   k.CreatedAt,
		})
	}
	httpserver.Respond(w, http.StatusOK, out)
}

func (h *handlers) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		apierr.RespondCode(w, apierr.CodeBadRequest, "invalid organization id")
		return
	}
	keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		apierr.RespondCode(w, apierr.CodeBadRequest, "invalid api key id")
		return
	}

	if err := h.deps.Auth.DeleteAPIKey(r.Context(), keyID, orgID); err != nil {
		h.deps.Logger.Error("deleting api key", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to delete api key")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type createClaimableSessionRequest struct {
	ComputeIDs []uuid.UUID `json:"compute_ids" validate:"required,min=1"`
	Scopes     []string    `json:"scopes"`
	Email      string      `json:"email,omitempty" validate:"omitempty,email"`
	ExpiresAt  time.Time   `json:"expires_at" validate:"required"`
}

type claimableSessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *handlers) createClaimableSession(w http.ResponseWriter, r *http.Request) {
	var req createClaimableSessionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.deps.Auth.CreateClaimableSession(r.Context(), req.ComputeIDs, req.Scopes, req.ExpiresAt, req.Email)
	if err != nil {
		h.deps.Logger.Error("creating claimable session", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to create session")
		return
	}

	httpserver.Respond(w, http.StatusCreated, claimableSessionResponse{
		SessionID: result.Session.ID.String(),
		Token:     result.RawToken,
		ExpiresAt: result.Session.ExpiresAt,
	})
}

type claimSessionResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// claimSession links the claimable session named by :sessionID to the
// calling user irrevocably, then mints an end-user bearer token for it as a
// convenience so the caller doesn't need a second round trip.
func (h *handlers) claimSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		apierr.RespondCode(w, apierr.CodeBadRequest, "invalid session id")
		return
	}

	id := identity.FromContext(r.Context())
	if id == nil || id.Kind != identity.SubjectUser || id.UserID == nil {
		apierr.RespondCode(w, apierr.CodeUnauthorized, "claiming a session requires a user bearer token")
		return
	}

	cs, err := h.deps.Auth.ClaimSession(r.Context(), sessionID, *id.UserID)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			apierr.RespondCode(w, apierr.CodeNotFound, "session not found")
		case errors.Is(err, auth.ErrSessionClaimed):
			apierr.RespondCode(w, apierr.CodeConflict, "session already claimed")
		case errors.Is(err, auth.ErrSessionExpired):
			apierr.RespondCode(w, apierr.CodeValidation, "session expired")
		default:
			h.deps.Logger.Error("claiming session", "error", err)
			apierr.RespondCode(w, apierr.CodeInternal, "failed to claim session")
		}
		return
	}

	token, err := h.deps.Auth.GenerateEndUserToken(r.Context(), cs.ID)
	if err != nil {
		h.deps.Logger.Error("issuing end-user token after claim", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "session claimed but token issuance failed")
		return
	}

	httpserver.Respond(w, http.StatusOK, claimSessionResponse{SessionID: cs.ID.String(), Token: token})
}

type addResourceRequest struct {
	ComputeID   uuid.UUID `json:"compute_id" validate:"required"`
	Permissions []string  `json:"permissions"`
}

// addResourceToSession narrows or widens an unclaimed session's grant before
// it is handed to its eventual claimant.
func (h *handlers) addResourceToSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		apierr.RespondCode(w, apierr.CodeBadRequest, "invalid session id")
		return
	}

	var req addResourceRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.deps.Auth.AddResourceToSession(r.Context(), sessionID, req.ComputeID, req.Permissions); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			apierr.RespondCode(w, apierr.CodeNotFound, "session not found")
		case errors.Is(err, auth.ErrSessionClaimed):
			apierr.RespondCode(w, apierr.CodeConflict, "session already claimed")
		case errors.Is(err, auth.ErrSessionExpired):
			apierr.RespondCode(w, apierr.CodeValidation, "session expired")
		default:
			h.deps.Logger.Error("adding resource to session", "error", err)
			apierr.RespondCode(w, apierr.CodeInternal, "failed to add resource")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type authStatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	SubjectKind   string `json:"subject_kind,omitempty"`
}

// authStatus is the cheap introspection endpoint: it reports that the caller
// is authenticated and its subject kind. It is mounted behind
// auth.RequireAuth, so a missing or invalid token gets a 401 before this
// handler runs; the Authenticated: false reply is sent only when no
// identity is in the request context.
func (h *handlers) authStatus(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	if id == nil {
		httpserver.Respond(w, http.StatusOK, authStatusResponse{Authenticated: false})
		return
	}
	httpserver.Respond(w, http.StatusOK, authStatusResponse{Authenticated: true, SubjectKind: string(id.Kind)})
}

type authInfoResponse struct {
	SubjectKind    string    `json:"subject_kind"`
	UserID         string    `json:"user_id,omitempty"`
	APIKeyID       string    `json:"api_key_id,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Scopes         []string  `json:"scopes,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// authInfo returns the full resolved identity for the caller's bearer
// token — the detailed counterpart to authStatus's yes/no check.
func (h *handlers) authInfo(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	if id == nil {
		apierr.RespondCode(w, apierr.CodeUnauthorized, "no authenticated identity")
		return
	}

	resp := authInfoResponse{
		SubjectKind: string(id.Kind),
		Scopes:      id.Scopes,
		ExpiresAt:   id.ExpiresAt,
	}
	if id.UserID != nil {
		resp.UserID = id.UserID.String()
	}
	if id.APIKeyID != nil {
		resp.APIKeyID = id.APIKeyID.String()
	}
	if id.SessionID != nil {
		resp.SessionID = id.SessionID.String()
	}
	if id.OrganizationID != nil {
		resp.OrganizationID = id.OrganizationID.String()
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
