package storage

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/tenancy/pkg/auth"
)

// Sentinel errors returned by every Store implementation
var (
	// ErrNotFound is returned when a lookup matches no entity
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicate is returned when a write violates a unique index
	ErrDuplicate = errors.New("unique constraint violated")
	// ErrConflict is returned when a compare-and-swap lost against a concurrent write
	ErrConflict = errors.New("concurrent modification")
)

// InvitationFilter selects invitations. Zero-valued fields are ignored.
type InvitationFilter struct {
	OrganizationID string
	FromUserID     string
	ToUserID       string
	Email          string
	Status         auth.InvitationStatus
	CreatedBefore  time.Time
}

// Matches reports whether the invitation satisfies every set field
func (f InvitationFilter) Matches(inv *auth.Invitation) bool {
	if f.OrganizationID != "" && inv.OrganizationID != f.OrganizationID {
		return false
	}
	if f.FromUserID != "" && inv.FromUserID != f.FromUserID {
		return false
	}
	if f.ToUserID != "" && inv.ToUserID != f.ToUserID {
		return false
	}
	if f.Email != "" && inv.Email != auth.CanonicalEmail(f.Email) {
		return false
	}
	if f.Status != "" && inv.Status != f.Status {
		return false
	}
	if !f.CreatedBefore.IsZero() && !inv.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

// UserReader reads users
type UserReader interface {
	GetUser(ctx context.Context, id string) (*auth.User, error)
	FindUserByEmail(ctx context.Context, email string) (*auth.User, error)
	FindUserByUsername(ctx context.Context, username string) (*auth.User, error)
	FindUserByAuthID(ctx context.Context, provider, externalID string) (*auth.User, error)
}

// OrganizationReader reads organizations
type OrganizationReader interface {
	GetOrganization(ctx context.Context, id string) (*auth.Organization, error)
	FindAdminOrganization(ctx context.Context) (*auth.Organization, error)
	ListOrganizationsByUser(ctx context.Context, userID string) ([]*auth.Organization, error)
}

// RoleReader reads membership roles
type RoleReader interface {
	GetRole(ctx context.Context, id string) (*auth.Role, error)
	FindRole(ctx context.Context, userID, organizationID string) (*auth.Role, error)
	ListRolesByUser(ctx context.Context, userID string) ([]*auth.Role, error)
	ListRolesByOrganization(ctx context.Context, organizationID string) ([]*auth.Role, error)
}

// InvitationReader reads invitations
type InvitationReader interface {
	GetInvitation(ctx context.Context, id string) (*auth.Invitation, error)
	FindInvitationByHash(ctx context.Context, hash string, status auth.InvitationStatus) (*auth.Invitation, error)
	ListInvitations(ctx context.Context, filter InvitationFilter) ([]*auth.Invitation, error)
}

// Reader composes all read operations. Returned entities are copies owned by
// the caller; mutating them has no effect until saved inside a transaction.
type Reader interface {
	UserReader
	OrganizationReader
	RoleReader
	InvitationReader
}

// Tx is a unit of work. Writes become visible to other readers only when the
// function passed to RunInTx returns nil.
type Tx interface {
	Reader

	// SaveUser inserts or replaces a user
	SaveUser(ctx context.Context, user *auth.User) error
	// SaveOrganization inserts or replaces an organization
	SaveOrganization(ctx context.Context, org *auth.Organization) error
	// InsertRole adds a role; ErrDuplicate when (user, organization) already has one
	InsertRole(ctx context.Context, role *auth.Role) error
	// DeleteRole removes a role by id
	DeleteRole(ctx context.Context, id string) error
	// InsertInvitation adds an invitation; ErrDuplicate on hash or pending (email, organization)
	InsertInvitation(ctx context.Context, inv *auth.Invitation) error
	// TransitionInvitation moves an invitation from one status to another.
	// ErrConflict when the stored status is not from. toUserID is recorded
	// when non-empty.
	TransitionInvitation(ctx context.Context, id string, from, to auth.InvitationStatus, toUserID string) error
}

// Store is the entity store used by the membership core
type Store interface {
	Reader

	// RunInTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// HealthCheck reports whether the store can serve requests
	HealthCheck(ctx context.Context) error

	// Close releases the store's resources
	Close() error
}
