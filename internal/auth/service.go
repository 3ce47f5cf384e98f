package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/compute-gateway/internal/identity"
)

// ErrInvalidCredentials is returned by AuthenticateUser and ValidateAPIKey
// for any failure that should be surfaced to the caller as "invalid
// credentials" without leaking which part of the check failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrDuplicate is returned by RegisterUser when the email is already taken.
var ErrDuplicate = errors.New("already exists")

// ErrSessionClaimed is returned by operations on a claimable session that
// has already been linked to a user.
var ErrSessionClaimed = errors.New("session already claimed")

// ErrSessionExpired is returned by operations on a claimable session past
// its expiry.
var ErrSessionExpired = errors.New("session expired")

// Service is the Authentication Core: it owns password verification, bearer
// token issuance/validation, API key lifecycle, and claimable sessions.
type Service struct {
	store      *Store
	issuer     *TokenIssuer
	logger     *slog.Logger
	userTTL    time.Duration
	refreshTTL time.Duration
	apiKeyTTL  time.Duration
	endUserTTL time.Duration
}

// Config configures token lifetimes for the Authentication Core.
type Config struct {
	UserTokenTTL    time.Duration
	RefreshTokenTTL time.Duration
	APIKeyTokenTTL  time.Duration
	EndUserTokenTTL time.Duration
}

// NewService builds the Authentication Core.
func NewService(store *Store, issuer *TokenIssuer, logger *slog.Logger, cfg Config) *Service {
	return &Service{
		store:      store,
		issuer:     issuer,
		logger:     logger,
		userTTL:    cfg.UserTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		apiKeyTTL:  cfg.APIKeyTokenTTL,
		endUserTTL: cfg.EndUserTokenTTL,
	}
}

// RegisterUser creates a new account, hashing its password, and auto-claims
// any claimable sessions already tagged with its email.
func (s *Service) RegisterUser(ctx context.Context, email, password, firstName, lastName string) (User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}

	displayName := strings.TrimSpace(firstName + " " + lastName)
	u, err := s.store.CreateUser(ctx, email, hash, displayName)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("creating user: %w", err)
	}

	if _, err := s.ClaimAllSessionsByEmail(ctx, email, u.ID); err != nil {
		s.logger.Warn("auto-claiming sessions at registration failed", "email", email, "error", err)
	}

	return u, nil
}

// AuthenticateUser verifies email/password and, on success, issues an access
// and refresh token pair scoped to the caller's primary organization.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (User, string, string, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, "", "", ErrInvalidCredentials
		}
		return User{}, "", "", fmt.Errorf("looking up user: %w", err)
	}

	if u.PasswordHash == "" || !VerifyPassword(u.PasswordHash, password) {
		return User{}, "", "", ErrInvalidCredentials
	}

	orgID, err := s.store.PrimaryOrganization(ctx, u.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, "", "", fmt.Errorf("resolving organization: %w", err)
	}

	access, refresh, err := s.GenerateUserTokens(u.ID, orgID)
	if err != nil {
		return User{}, "", "", err
	}
	return u, access, refresh, nil
}

// GenerateUserTokens mints an access/refresh bearer token pair for a user,
// shared by AuthenticateUser and RefreshUserToken.
func (s *Service) GenerateUserTokens(userID, organizationID uuid.UUID) (access, refresh string, err error) {
	access, err = s.issuer.IssueUserToken(userID, organizationID, s.userTTL)
	if err != nil {
		return "", "", fmt.Errorf("issuing access token: %w", err)
	}
	refresh, err = s.issuer.IssueUserRefreshToken(userID, organizationID, s.refreshTTL)
	if err != nil {
		return "", "", fmt.Errorf("issuing refresh token: %w", err)
	}
	return access, refresh, nil
}

// RefreshUserToken exchanges a valid refresh token for a fresh access/refresh
// pair. The presented refresh token is not revoked — rotation here is
// generational, not single-use.
func (s *Service) RefreshUserToken(ctx context.Context, rawRefreshToken string) (string, string, error) {
	id, err := s.issuer.ValidateRefreshToken(rawRefreshToken)
	if err != nil {
		return "", "", ErrInvalidCredentials
	}
	if id.UserID == nil || id.OrganizationID == nil {
		return "", "", ErrInvalidCredentials
	}
	return s.GenerateUserTokens(*id.UserID, *id.OrganizationID)
}

// ValidateToken verifies a bearer token of any subject kind and resolves it
// to an Identity. For API key subjects it updates last-used asynchronously.
func (s *Service) ValidateToken(ctx context.Context, raw string) (*identity.Identity, error) {
	id, err := s.issuer.ValidateToken(raw)
	if err != nil {
		return nil, fmt.Errorf("validating token: %w", err)
	}

	if id.Kind == identity.SubjectAPIKey && id.APIKeyID != nil {
		keyID := *id.APIKeyID
		go s.store.TouchAPIKeyLastUsed(context.WithoutCancel(ctx), keyID)
	}

	return id, nil
}

// CreateAPIKeyResult is returned by CreateAPIKey; RawKey is shown only once.
type CreateAPIKeyResult struct {
	APIKey APIKey
	RawKey string
}

// CreateAPIKey mints a new API key for an organization.
func (s *Service) CreateAPIKey(ctx context.Context, orgID uuid.UUID, description string, scopes []string, expiresAt *time.Time) (CreateAPIKeyResult, error) {
	generated, err := GenerateAPIKey()
	if err != nil {
		return CreateAPIKeyResult{}, fmt.Errorf("generating api key: %w", err)
	}

	key, err := s.store.CreateAPIKey(ctx, orgID, generated.Hash, generated.Prefix, description, scopes, expiresAt)
	if err != nil {
		return CreateAPIKeyResult{}, fmt.Errorf("storing api key: %w", err)
	}

	return CreateAPIKeyResult{APIKey: key, RawKey: generated.Raw}, nil
}

// ValidateAPIKey looks up a raw API key by its hash, checks expiry, and
// issues an API-key bearer token carrying the key's scopes.
func (s *Service) ValidateAPIKey(ctx context.Context, rawKey string) (string, error) {
	if rawKey == "" {
		return "", ErrInvalidCredentials
	}

	hash := HashAPIKey(rawKey)
	key, err := s.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("looking up api key: %w", err)
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return "", ErrInvalidCredentials
	}

	go s.store.TouchAPIKeyLastUsed(context.WithoutCancel(ctx), key.ID)

	token, err := s.issuer.IssueAPIKeyToken(key.ID, key.OrganizationID, key.Scopes, s.apiKeyTTL)
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}
	return token, nil
}

// DeleteAPIKey permanently removes an API key scoped to an organization.
func (s *Service) DeleteAPIKey(ctx context.Context, id, orgID uuid.UUID) error {
	return s.store.DeleteAPIKey(ctx, id, orgID)
}

// ListAPIKeys returns all API keys belonging to an organization.
func (s *Service) ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]APIKey, error) {
	return s.store.ListAPIKeys(ctx, orgID)
}

// CreateClaimableSessionResult is returned by CreateClaimableSession; RawToken
// is shown only once (e.g. embedded in a shared link).
type CreateClaimableSessionResult struct {
	Session  ClaimableSession
	RawToken string
}

// claimableSessionPrefix identifies claimable-session tokens, e.g. in logs.
const claimableSessionPrefix = "ses_"

// CreateClaimableSession mints a one-time claim token granting access to the
// given computes with the given scopes, valid until expiresAt. email is
// optional — when set, the session is auto-claimed the moment that address
// registers or is otherwise linked to a user via ClaimAllSessionsByEmail.
func (s *Service) CreateClaimableSession(ctx context.Context, computeIDs []uuid.UUID, scopes []string, expiresAt time.Time, email string) (CreateClaimableSessionResult, error) {
	raw, err := generateOpaqueToken(claimableSessionPrefix)
	if err != nil {
		return CreateClaimableSessionResult{}, fmt.Errorf("generating session token: %w", err)
	}

	hash := HashAPIKey(raw)
	prefix := raw[:len(claimableSessionPrefix)+8]

	cs, err := s.store.CreateClaimableSession(ctx, hash, prefix, scopes, expiresAt, email, computeIDs)
	if err != nil {
		return CreateClaimableSessionResult{}, fmt.Errorf("storing claimable session: %w", err)
	}

	return CreateClaimableSessionResult{Session: cs, RawToken: raw}, nil
}

// GetClaimableSession looks up a claimable session by id.
func (s *Service) GetClaimableSession(ctx context.Context, sessionID uuid.UUID) (ClaimableSession, error) {
	cs, err := s.store.GetClaimableSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ClaimableSession{}, ErrInvalidCredentials
		}
		return ClaimableSession{}, fmt.Errorf("getting claimable session: %w", err)
	}
	return cs, nil
}

// ValidateSessionToken resolves a raw claimable-session token to its session
// record without claiming it, so a still-anonymous holder of a shared link
// can be shown what it grants before logging in. Expired sessions are
// rejected; already-claimed sessions are not — a session stays readable
// (and its end-user tokens mintable) for as long as it hasn't expired.
func (s *Service) ValidateSessionToken(ctx context.Context, rawToken string) (ClaimableSession, error) {
	hash := HashAPIKey(rawToken)
	cs, err := s.store.GetClaimableSessionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ClaimableSession{}, ErrInvalidCredentials
		}
		return ClaimableSession{}, fmt.Errorf("looking up claimable session: %w", err)
	}
	if cs.ExpiresAt.Before(time.Now()) {
		return ClaimableSession{}, ErrSessionExpired
	}
	return cs, nil
}

// AddResourceToSession grants an additional compute to an unclaimed,
// unexpired session — narrowing or widening its scope before it is handed
// to its eventual claimant.
func (s *Service) AddResourceToSession(ctx context.Context, sessionID, computeID uuid.UUID, permissions []string) error {
	cs, err := s.store.GetClaimableSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("looking up claimable session: %w", err)
	}
	if cs.ClaimedAt != nil {
		return ErrSessionClaimed
	}
	if cs.ExpiresAt.Before(time.Now()) {
		return ErrSessionExpired
	}
	return s.store.AddSessionResource(ctx, sessionID, computeID, permissions)
}

// ClaimSession links a claimable session to userID irrevocably: once set,
// the (userID, claimedAt) pair never changes. A session may only be claimed
// once, by whichever caller gets there first.
func (s *Service) ClaimSession(ctx context.Context, sessionID, userID uuid.UUID) (ClaimableSession, error) {
	cs, err := s.store.GetClaimableSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ClaimableSession{}, ErrInvalidCredentials
		}
		return ClaimableSession{}, fmt.Errorf("looking up claimable session: %w", err)
	}
	if cs.ClaimedAt != nil {
		return ClaimableSession{}, ErrSessionClaimed
	}
	if cs.ExpiresAt.Before(time.Now()) {
		return ClaimableSession{}, ErrSessionExpired
	}

	now := time.Now()
	if err := s.store.MarkClaimed(ctx, sessionID, userID, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ClaimableSession{}, ErrSessionClaimed
		}
		return ClaimableSession{}, fmt.Errorf("claiming session: %w", err)
	}

	cs.UserID = &userID
	cs.ClaimedAt = &now
	return cs, nil
}

// ClaimAllSessionsByEmail links every unclaimed, unexpired session tagged
// with email to userID. RegisterUser calls it to sweep up any sessions that
// were pre-provisioned for the new user's address.
func (s *Service) ClaimAllSessionsByEmail(ctx context.Context, email string, userID uuid.UUID) (int, error) {
	sessions, err := s.store.ListUnclaimedSessionsByEmail(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("listing sessions by email: %w", err)
	}

	now := time.Now()
	claimed := 0
	for _, cs := range sessions {
		if err := s.store.MarkClaimed(ctx, cs.ID, userID, now); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return claimed, fmt.Errorf("claiming session %s: %w", cs.ID, err)
		}
		claimed++
	}
	return claimed, nil
}

// GenerateEndUserToken mints a bearer token for a claimed session, scoped to
// its granted resources, with TTL capped to whatever remains of the
// session's own expiry.
func (s *Service) GenerateEndUserToken(ctx context.Context, sessionID uuid.UUID) (string, error) {
	cs, err := s.store.GetClaimableSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("looking up claimable session: %w", err)
	}

	remaining := time.Until(cs.ExpiresAt)
	if remaining <= 0 {
		return "", ErrSessionExpired
	}
	ttl := s.endUserTTL
	if remaining < ttl {
		ttl = remaining
	}

	token, err := s.issuer.IssueEndUserToken(cs.ID, cs.Scopes, ttl)
	if err != nil {
		return "", fmt.Errorf("issuing end-user token: %w", err)
	}
	return token, nil
}

// ExtendSession moves a session's expiry to now plus the given duration,
// never shortening it: an expiry already later than that is kept. Used by the end-user-session TTL story: a still-live
// sandbox extends its own access grant before the current token lapses.
func (s *Service) ExtendSession(ctx context.Context, sessionID uuid.UUID, by time.Duration) (ClaimableSession, error) {
	cs, err := s.store.GetClaimableSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ClaimableSession{}, ErrInvalidCredentials
		}
		return ClaimableSession{}, fmt.Errorf("looking up claimable session: %w", err)
	}

	newExpiry := time.Now().Add(by)
	if newExpiry.Before(cs.ExpiresAt) {
		newExpiry = cs.ExpiresAt
	}
	if err := s.store.ExtendSessionExpiry(ctx, sessionID, newExpiry); err != nil {
		return ClaimableSession{}, fmt.Errorf("extending session: %w", err)
	}
	cs.ExpiresAt = newExpiry
	return cs, nil
}

// SessionComputeIDs returns the computes a claimed end-user session was
// granted access to.
func (s *Service) SessionComputeIDs(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	return s.store.ListSessionComputeIDs(ctx, sessionID)
}
