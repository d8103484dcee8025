package audit

import (
	"context"
	"fmt"

	"github.com/platinummonkey/tenancy/pkg/contextkeys"
	"github.com/platinummonkey/tenancy/pkg/events"
)

// Recorder converts domain events into audit events. Register it with
// events.Bus.SubscribeAll.
type Recorder struct {
	logger Logger
}

// NewRecorder creates a recorder writing to logger
func NewRecorder(logger Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Handle implements events.Handler. Events without an audit mapping are ignored.
func (r *Recorder) Handle(ctx context.Context, event events.Event) error {
	entry := FromDomainEvent(event)
	if entry == nil {
		return nil
	}
	entry.ActorID = contextkeys.GetUserID(ctx)
	entry.RequestID = contextkeys.GetRequestID(ctx)
	if err := r.logger.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to record %s: %w", event.EventName(), err)
	}
	return nil
}

// FromDomainEvent maps a domain event to an audit event, or nil when the
// event is not audited.
func FromDomainEvent(event events.Event) *Event {
	out := &Event{Timestamp: event.OccurredAt()}
	switch e := event.(type) {
	case events.OrganizationCreated:
		out.Action = ActionOrganizationCreated
		if e.User != nil {
			out.UserID = e.User.ID
		}
		if e.Organization != nil {
			out.OrganizationID = e.Organization.ID
			out.Message = fmt.Sprintf("organization %q created", e.Organization.Name)
		}
	case events.UserOAuthSignup:
		out.Action = ActionUserSignup
		out.Provider = e.Provider
		if e.User != nil {
			out.UserID = e.User.ID
			out.Email = e.User.Email
		}
		out.Message = "user signed up via " + e.Provider
	case events.UserOAuthLogin:
		out.Action = ActionUserLogin
		out.Provider = e.Provider
		if e.User != nil {
			out.UserID = e.User.ID
		}
		out.Message = "user logged in via " + e.Provider
	case events.InvitationCreated:
		out.Action = ActionInvitationCreated
		if e.Invitation != nil {
			out.InvitationID = e.Invitation.ID
			out.UserID = e.Invitation.FromUserID
			out.OrganizationID = e.Invitation.OrganizationID
			out.Email = e.Invitation.Email
		}
		out.Message = "invitation sent"
	case events.InvitationAccepted:
		out.Action = ActionInvitationAccepted
		if e.Invitation != nil {
			out.InvitationID = e.Invitation.ID
			out.OrganizationID = e.Invitation.OrganizationID
			out.Email = e.Invitation.Email
		}
		if e.User != nil {
			out.UserID = e.User.ID
		}
		out.Message = "invitation accepted"
	default:
		return nil
	}
	return out
}
