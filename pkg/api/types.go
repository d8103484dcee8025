package api

import (
	"github.com/platinummonkey/tenancy/pkg/auth"
)

// CreateOrganizationRequest is the body of POST /api/v1/organizations
type CreateOrganizationRequest struct {
	UserID string `json:"user_id"`
}

// AddMemberRequest is the body of POST /api/v1/organizations/{id}/members
type AddMemberRequest struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// SwitchOrganizationRequest is the body of PUT /api/v1/users/{id}/active-organization
type SwitchOrganizationRequest struct {
	OrganizationID string `json:"organization_id"`
}

// CreateInvitationRequest is the body of POST /api/v1/organizations/{id}/invitations
type CreateInvitationRequest struct {
	FromUserID string   `json:"from_user_id"`
	Email      string   `json:"email"`
	Roles      []string `json:"roles"`
	Locale     string   `json:"locale,omitempty"`
}

// AcceptInvitationRequest is the body of POST /api/v1/invitations/{hash}/accept
type AcceptInvitationRequest struct {
	UserID string `json:"user_id"`
}

// RolesResponse lists a user's effective roles and per-organization memberships
type RolesResponse struct {
	UserID               string       `json:"user_id"`
	ActiveOrganizationID string       `json:"active_organization_id"`
	Roles                []string     `json:"roles"`
	Memberships          []*auth.Role `json:"memberships"`
}

// ConfirmRegistrationRequest is the body of POST /api/v1/users/{id}/registration/confirm
type ConfirmRegistrationRequest struct {
	InvitationHash string `json:"invitation_hash,omitempty"`
	Locale         string `json:"locale,omitempty"`
}
