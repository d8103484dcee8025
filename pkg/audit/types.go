package audit

import "time"

// Action identifies what happened
type Action string

const (
	ActionOrganizationCreated Action = "organization.created"
	ActionUserSignup          Action = "user.signup"
	ActionUserLogin           Action = "user.login"
	ActionInvitationCreated   Action = "invitation.created"
	ActionInvitationAccepted  Action = "invitation.accepted"
)

// Event is a single audit record
type Event struct {
	Timestamp      time.Time `json:"timestamp"`
	Action         Action    `json:"action"`
	ActorID        string    `json:"actor_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	InvitationID   string    `json:"invitation_id,omitempty"`
	Email          string    `json:"email,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	Message        string    `json:"message,omitempty"`
}
