package auth

import (
	"strings"
	"time"
)

// Role-strings granted by the membership core
const (
	RoleDefault           = "ROLE_DEFAULT"
	RoleUser              = "ROLE_USER"
	RoleOrganizationOwner = "ROLE_ORGANIZATION_OWNER"
	RoleSuperAdmin        = "ROLE_SUPER_ADMIN"

	// OrganizationRolePrefix marks role-strings that are scoped to the active organization
	OrganizationRolePrefix = "ROLE_ORGANIZATION"
)

// ProviderLocal is the auth provider of users who signed up with a password
const ProviderLocal = "local"

// IsOrganizationRole reports whether role is scoped to an organization
func IsOrganizationRole(role string) bool {
	return strings.HasPrefix(role, OrganizationRolePrefix)
}

// AuthData holds the credentials returned by an OAuth provider
type AuthData struct {
	ID    string `json:"id"`
	Token string `json:"token,omitempty"`
}

// User represents an account
type User struct {
	ID                   string              `json:"id"`
	Username             string              `json:"username"`
	Email                string              `json:"email"`
	Password             string              `json:"-"`
	Enabled              bool                `json:"enabled"`
	Roles                []string            `json:"roles"`
	ActiveOrganizationID string              `json:"active_organization_id,omitempty"`
	ActiveRoleID         string              `json:"active_role_id,omitempty"`
	OrganizationIDs      []string            `json:"organization_ids,omitempty"`
	Contact              *Contact            `json:"contact,omitempty"`
	AuthProvider         string              `json:"auth_provider,omitempty"`
	FirstAuthProvider    string              `json:"first_auth_provider,omitempty"`
	AuthData             map[string]AuthData `json:"-"`
	Attributes           map[string]any      `json:"attributes,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
	DeletedAt            *time.Time          `json:"deleted_at,omitempty"`
}

// SetAuthData records provider credentials for the user
func (u *User) SetAuthData(provider string, data AuthData) {
	if u.AuthData == nil {
		u.AuthData = make(map[string]AuthData)
	}
	u.AuthData[provider] = data
}

// IsMemberOf reports whether the user belongs to the organization
func (u *User) IsMemberOf(orgID string) bool {
	return containsString(u.OrganizationIDs, orgID)
}

// HasRole reports whether role is directly assigned to the user
func (u *User) HasRole(role string) bool {
	return containsString(u.Roles, role)
}

// Clone returns a deep copy of the user
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = cloneStrings(u.Roles)
	c.OrganizationIDs = cloneStrings(u.OrganizationIDs)
	c.Contact = u.Contact.Clone()
	if u.AuthData != nil {
		c.AuthData = make(map[string]AuthData, len(u.AuthData))
		for k, v := range u.AuthData {
			c.AuthData[k] = v
		}
	}
	c.Attributes = cloneMap(u.Attributes)
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// OrganizationType distinguishes freelancers from companies
type OrganizationType string

const (
	OrganizationFreelance OrganizationType = "freelance"
	OrganizationCompany   OrganizationType = "company"
)

// Organization represents a tenant
type Organization struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Type       OrganizationType `json:"type"`
	Enabled    bool             `json:"enabled"`
	Locked     bool             `json:"locked"`
	AdminOwner bool             `json:"admin_owner,omitempty"`
	OwnerID    string           `json:"owner_id"`
	Contact    *Contact         `json:"contact,omitempty"`
	MemberIDs  []string         `json:"member_ids"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	DeletedAt  *time.Time       `json:"deleted_at,omitempty"`
}

// HasMember reports whether the user belongs to the organization
func (o *Organization) HasMember(userID string) bool {
	return containsString(o.MemberIDs, userID)
}

// Clone returns a deep copy of the organization
func (o *Organization) Clone() *Organization {
	if o == nil {
		return nil
	}
	c := *o
	c.MemberIDs = cloneStrings(o.MemberIDs)
	c.Contact = o.Contact.Clone()
	if o.DeletedAt != nil {
		t := *o.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// Role binds one user to one organization with a set of role-strings
type Role struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	Roles          []string  `json:"roles"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the role
func (r *Role) Clone() *Role {
	if r == nil {
		return nil
	}
	c := *r
	c.Roles = cloneStrings(r.Roles)
	return &c
}

// InvitationStatus is the lifecycle state of an invitation
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationExpired  InvitationStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed
func (s InvitationStatus) IsTerminal() bool {
	return s != InvitationPending
}

// DefaultLocale is used for invitations that do not specify one
const DefaultLocale = "en"

// Invitation is an offer for an email address to join an organization
type Invitation struct {
	ID             string           `json:"id"`
	Status         InvitationStatus `json:"status"`
	Hash           string           `json:"-"`
	Email          string           `json:"email"`
	Roles          []string         `json:"roles"`
	FromUserID     string           `json:"from_user_id"`
	ToUserID       string           `json:"to_user_id,omitempty"`
	OrganizationID string           `json:"organization_id"`
	Locale         string           `json:"locale"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Clone returns a deep copy of the invitation
func (i *Invitation) Clone() *Invitation {
	if i == nil {
		return nil
	}
	c := *i
	c.Roles = cloneStrings(i.Roles)
	return &c
}

// CanonicalEmail normalizes an email address for comparisons and unique indexes
func CanonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
