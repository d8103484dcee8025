package api

import (
	"net/http"

	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/httputil"
	"github.com/platinummonkey/tenancy/pkg/storage"
)

// listUserOrganizations handles GET /api/v1/users/{id}/organizations
func (s *Server) listUserOrganizations(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r, "id")
	if !ok {
		return
	}
	list, err := s.orgs.ListOrganizations(r.Context(), user)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, list)
}

// switchOrganization handles PUT /api/v1/users/{id}/active-organization
func (s *Server) switchOrganization(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r, "id")
	if !ok {
		return
	}
	var req SwitchOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	org, ok := s.loadOrganization(w, r, "organization_id", req.OrganizationID)
	if !ok {
		return
	}

	if err := s.orgs.SwitchOrganization(r.Context(), user, org); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, user)
}

// getUserRoles handles GET /api/v1/users/{id}/roles
func (s *Server) getUserRoles(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r, "id")
	if !ok {
		return
	}

	roles, err := s.authorizer.Roles(r.Context(), user)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	memberships, err := s.orgs.OrganizationRoles(r.Context(), user)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, RolesResponse{
		UserID:               user.ID,
		ActiveOrganizationID: user.ActiveOrganizationID,
		Roles:                roles,
		Memberships:          memberships,
	})
}

// listUserInvitations handles GET /api/v1/users/{id}/invitations.
// ?direction=sent lists invitations the user sent, otherwise the ones the user accepted.
func (s *Server) listUserInvitations(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r, "id")
	if !ok {
		return
	}

	filter := storage.InvitationFilter{ToUserID: user.ID}
	switch r.URL.Query().Get("direction") {
	case "", "accepted":
	case "sent":
		filter = storage.InvitationFilter{FromUserID: user.ID}
	default:
		httputil.WriteBadRequest(w, "direction must be sent or accepted")
		return
	}

	list, err := s.invitations.List(r.Context(), filter)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, list)
}

// confirmRegistration handles POST /api/v1/users/{id}/registration/confirm.
// It sets up the organization of a user who registered with a password.
func (s *Server) confirmRegistration(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r, "id")
	if !ok {
		return
	}
	var req ConfirmRegistrationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := s.signup.RegistrationConfirmed(r.Context(), auth.SignupContext{
		InvitationHash: req.InvitationHash,
		Locale:         req.Locale,
	}, user)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, org)
}
