package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by Store lookups that find no matching row.
var ErrNotFound = errors.New("not found")

const sqlStateUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation
}

// Store provides Postgres-backed persistence for organizations, users, API
// keys, and claimable sessions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Organizations ---

func (s *Store) CreateOrganization(ctx context.Context, name, slug string) (Organization, error) {
	var o Organization
	err := s.pool.QueryRow(ctx,
		`INSERT INTO organizations (name, slug) VALUES ($1, $2)
		 RETURNING id, name, slug, created_at`,
		name, slug,
	).Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt)
	if err != nil {
		return Organization{}, fmt.Errorf("creating organization: %w", err)
	}
	return o, nil
}

func (s *Store) GetOrganization(ctx context.Context, id uuid.UUID) (Organization, error) {
	var o Organization
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, slug, created_at FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, ErrNotFound
	}
	if err != nil {
		return Organization{}, fmt.Errorf("getting organization: %w", err)
	}
	return o, nil
}

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, email, passwordHash, displayName string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, display_name) VALUES ($1, $2, $3)
		 RETURNING id, email, password_hash, display_name, created_at`,
		email, passwordHash, displayName,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, display_name, created_at FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, display_name, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// --- Organization membership ---

func (s *Store) AddMember(ctx context.Context, orgID, userID uuid.UUID, role Role) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO organization_members (organization_id, user_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (organization_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		orgID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("adding organization member: %w", err)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (OrganizationMember, error) {
	var m OrganizationMember
	err := s.pool.QueryRow(ctx,
		`SELECT organization_id, user_id, role, created_at FROM organization_members
		 WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID,
	).Scan(&m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrganizationMember{}, ErrNotFound
	}
	if err != nil {
		return OrganizationMember{}, fmt.Errorf("getting membership: %w", err)
	}
	return m, nil
}

// PrimaryOrganization returns the first organization a user belongs to,
// ordered by membership creation time. Used to populate the organization_id
// claim at login when the caller doesn't specify one explicitly.
func (s *Store) PrimaryOrganization(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var orgID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT organization_id FROM organization_members
		 WHERE user_id = $1 ORDER BY created_at ASC LIMIT 1`,
		userID,
	).Scan(&orgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("getting primary organization: %w", err)
	}
	return orgID, nil
}

// --- API keys ---

const apiKeyColumns = `id, organization_id, key_hash, key_prefix, description, scopes, last_used_at, expires_at, created_at`

func scanAPIKey(row pgx.Row) (APIKey, error) {
	var k APIKey
	err := row.Scan(&k.ID, &k.OrganizationID, &k.KeyHash, &k.KeyPrefix, &k.Description, &k.Scopes, &k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt)
	return k, err
}

func (s *Store) CreateAPIKey(ctx context.Context, orgID uuid.UUID, hash, prefix, description string, scopes []string, expiresAt *time.Time) (APIKey, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO api_keys (organization_id, key_hash, key_prefix, description, scopes, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+apiKeyColumns,
		orgID, hash, prefix, description, scopes, expiresAt,
	)
	k, err := scanAPIKey(row)
	if err != nil {
		return APIKey{}, fmt.Errorf("creating api key: %w", err)
	}
	return k, nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (APIKey, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, hash)
	k, err := scanAPIKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrNotFound
	}
	if err != nil {
		return APIKey{}, fmt.Errorf("getting api key by hash: %w", err)
	}
	return k, nil
}

func (s *Store) ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]APIKey, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var out []APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAPIKey(ctx context.Context, id, orgID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) TouchAPIKeyLastUsed(ctx context.Context, id uuid.UUID) {
	_, _ = s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
}

// --- Claimable sessions ---

const claimableSessionColumns = `id, token_hash, token_prefix, scopes, coalesce(email, ''), user_id, expires_at, claimed_at, created_at`

func scanClaimableSession(row pgx.Row) (ClaimableSession, error) {
	var cs ClaimableSession
	err := row.Scan(&cs.ID, &cs.TokenHash, &cs.TokenPrefix, &cs.Scopes, &cs.Email, &cs.UserID, &cs.ExpiresAt, &cs.ClaimedAt, &cs.CreatedAt)
	return cs, err
}

func (s *Store) CreateClaimableSession(ctx context.Context, hash, prefix string, scopes []string, expiresAt time.Time, email string, computeIDs []uuid.UUID) (ClaimableSession, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ClaimableSession{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var emailArg *string
	if email != "" {
		emailArg = &email
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO claimable_sessions (token_hash, token_prefix, scopes, email, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+claimableSessionColumns,
		hash, prefix, scopes, emailArg, expiresAt,
	)
	cs, err := scanClaimableSession(row)
	if err != nil {
		return ClaimableSession{}, fmt.Errorf("creating claimable session: %w", err)
	}

	for _, computeID := range computeIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO claimable_session_resources (session_id, compute_id) VALUES ($1, $2)`,
			cs.ID, computeID,
		); err != nil {
			return ClaimableSession{}, fmt.Errorf("granting compute resource: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ClaimableSession{}, fmt.Errorf("committing transaction: %w", err)
	}
	return cs, nil
}

func (s *Store) GetClaimableSession(ctx context.Context, id uuid.UUID) (ClaimableSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+claimableSessionColumns+` FROM claimable_sessions WHERE id = $1`, id)
	cs, err := scanClaimableSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ClaimableSession{}, ErrNotFound
	}
	if err != nil {
		return ClaimableSession{}, fmt.Errorf("getting claimable session: %w", err)
	}
	return cs, nil
}

func (s *Store) GetClaimableSessionByHash(ctx context.Context, hash string) (ClaimableSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+claimableSessionColumns+` FROM claimable_sessions WHERE token_hash = $1`, hash)
	cs, err := scanClaimableSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ClaimableSession{}, ErrNotFound
	}
	if err != nil {
		return ClaimableSession{}, fmt.Errorf("getting claimable session: %w", err)
	}
	return cs, nil
}

// ListUnclaimedSessionsByEmail returns unclaimed, unexpired sessions tagged
// with the given email — the pool ClaimAllSessionsByEmail draws from when a
// user registers.
func (s *Store) ListUnclaimedSessionsByEmail(ctx context.Context, email string) ([]ClaimableSession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+claimableSessionColumns+` FROM claimable_sessions
		 WHERE email = $1 AND claimed_at IS NULL AND expires_at > now()`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions by email: %w", err)
	}
	defer rows.Close()

	var out []ClaimableSession
	for rows.Next() {
		cs, err := scanClaimableSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning claimable session: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *Store) ListSessionComputeIDs(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT compute_id FROM claimable_session_resources WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing session resources: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session resource: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddSessionResource grants (or updates the permissions of) access to a
// compute under an existing claimable session.
func (s *Store) AddSessionResource(ctx context.Context, sessionID, computeID uuid.UUID, permissions []string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO claimable_session_resources (session_id, compute_id, permissions)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id, compute_id) DO UPDATE SET permissions = EXCLUDED.permissions`,
		sessionID, computeID, permissions,
	)
	if err != nil {
		return fmt.Errorf("adding session resource: %w", err)
	}
	return nil
}

// ExtendSessionExpiry pushes a session's expires_at to newExpiry.
func (s *Store) ExtendSessionExpiry(ctx context.Context, sessionID uuid.UUID, newExpiry time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE claimable_sessions SET expires_at = $2 WHERE id = $1`, sessionID, newExpiry)
	if err != nil {
		return fmt.Errorf("extending session expiry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkClaimed links a session to the claiming user and stamps claimed_at, but
// only on first claim: the WHERE clause makes the link irrevocable once set.
// Returns ErrNotFound if the session doesn't exist or was already claimed.
func (s *Store) MarkClaimed(ctx context.Context, sessionID, userID uuid.UUID, when time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE claimable_sessions SET user_id = $2, claimed_at = $3 WHERE id = $1 AND claimed_at IS NULL`,
		sessionID, userID, when,
	)
	if err != nil {
		return fmt.Errorf("marking session claimed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
