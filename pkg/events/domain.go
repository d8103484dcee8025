package events

import (
	"github.com/platinummonkey/tenancy/pkg/auth"
)

// Event names
const (
	OrganizationCreatedEvent = "organization.created"
	UserOAuthSignupEvent     = "user.oauth_signup"
	UserOAuthLoginEvent      = "user.oauth_login"
	InvitationCreatedEvent   = "invitation.created"
	InvitationAcceptedEvent  = "invitation.accepted"
)

// OrganizationCreated is published once an organization and its owner
// membership have been committed.
type OrganizationCreated struct {
	BaseEvent
	User         *auth.User         `json:"user"`
	Organization *auth.Organization `json:"organization"`
}

func (OrganizationCreated) EventName() string { return OrganizationCreatedEvent }

// UserOAuthSignup is published when a user is created from an OAuth profile.
type UserOAuthSignup struct {
	BaseEvent
	User     *auth.User `json:"user"`
	Provider string     `json:"provider"`
}

func (UserOAuthSignup) EventName() string { return UserOAuthSignupEvent }

// UserOAuthLogin is published after every OAuth login.
type UserOAuthLogin struct {
	BaseEvent
	User     *auth.User `json:"user"`
	Provider string     `json:"provider"`
}

func (UserOAuthLogin) EventName() string { return UserOAuthLoginEvent }

// InvitationCreated is published after an invitation is stored.
type InvitationCreated struct {
	BaseEvent
	Invitation   *auth.Invitation   `json:"invitation"`
	Organization *auth.Organization `json:"organization"`
	// Hash is carried separately since Invitation never serializes it.
	// Mailers need it to build the acceptance link.
	Hash string `json:"hash"`
}

func (InvitationCreated) EventName() string { return InvitationCreatedEvent }

// InvitationAccepted is published after an invitation turned into a membership.
type InvitationAccepted struct {
	BaseEvent
	Invitation   *auth.Invitation   `json:"invitation"`
	User         *auth.User         `json:"user"`
	Organization *auth.Organization `json:"organization"`
}

func (InvitationAccepted) EventName() string { return InvitationAcceptedEvent }
