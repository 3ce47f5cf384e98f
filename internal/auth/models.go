package auth

import (
	"time"

	"github.com/google/uuid"
)

// Role is an organization member's privilege level.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

var roleLevel = map[Role]int{
	RoleOwner:  30,
	RoleAdmin:  20,
	RoleMember: 10,
}

// IsValidRole reports whether role is one of the known organization roles.
func IsValidRole(role Role) bool {
	_, ok := roleLevel[role]
	return ok
}

// AtLeast reports whether r meets or exceeds min in privilege.
func (r Role) AtLeast(min Role) bool {
	return roleLevel[r] >= roleLevel[min]
}

// Organization is a billing/ownership boundary grouping users, API keys,
// and the computes created under them.
type Organization struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	CreatedAt time.Time
}

// User is an account that can belong to one or more organizations.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
}

// OrganizationMember links a user to an organization with a role.
type OrganizationMember struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Role           Role
	CreatedAt      time.Time
}

// APIKey is a long-lived credential scoped to an organization.
type APIKey struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	KeyHash        string
	KeyPrefix      string
	Description    string
	Scopes         []string
	LastUsedAt     *time.Time
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// ClaimableSession is a one-time, opaque-token grant handed to an end user
// (e.g. embedded in a shared link) that, once claimed, is irrevocably linked
// to the claiming user and mints short-lived end-user bearer tokens scoped
// to the compute resources it was granted.
type ClaimableSession struct {
	ID          uuid.UUID
	TokenHash   string
	TokenPrefix string
	Scopes      []string
	Email       string
	UserID      *uuid.UUID
	ExpiresAt   time.Time
	ClaimedAt   *time.Time
	CreatedAt   time.Time
}

// ClaimableSessionResource is one compute a claimable session grants access
// to, with the permissions that grant carries. A session may bundle access
// to more than one compute.
type ClaimableSessionResource struct {
	SessionID   uuid.UUID
	ComputeID   uuid.UUID
	Permissions []string
}
