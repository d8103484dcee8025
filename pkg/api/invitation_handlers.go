package api

import (
	"net/http"

	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/httputil"
	"github.com/platinummonkey/tenancy/pkg/storage"
)

// createInvitation handles POST /api/v1/organizations/{id}/invitations
func (s *Server) createInvitation(w http.ResponseWriter, r *http.Request) {
	org, ok := s.pathOrganization(w, r)
	if !ok {
		return
	}
	var req CreateInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	from, ok := s.loadUser(w, r, "from_user_id", req.FromUserID)
	if !ok {
		return
	}

	inv, err := s.invitations.Create(r.Context(), org, from, req.Email, req.Roles, req.Locale)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, inv)
}

// listOrganizationInvitations handles GET /api/v1/organizations/{id}/invitations
func (s *Server) listOrganizationInvitations(w http.ResponseWriter, r *http.Request) {
	org, ok := s.pathOrganization(w, r)
	if !ok {
		return
	}

	filter := storage.InvitationFilter{OrganizationID: org.ID}
	if status := r.URL.Query().Get("status"); status != "" {
		switch st := auth.InvitationStatus(status); st {
		case auth.InvitationPending, auth.InvitationAccepted, auth.InvitationRejected, auth.InvitationExpired:
			filter.Status = st
		default:
			httputil.WriteBadRequest(w, "unknown invitation status: "+status)
			return
		}
	}

	list, err := s.invitations.List(r.Context(), filter)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, list)
}

// acceptInvitation handles POST /api/v1/invitations/{hash}/accept
func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	hash, ok := httputil.ParsePathStringOrError(w, r, "hash")
	if !ok {
		return
	}
	var req AcceptInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	user, ok := s.loadUser(w, r, "user_id", req.UserID)
	if !ok {
		return
	}

	org, err := s.invitations.ResolveByHash(r.Context(), user, hash)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, org)
}

// rejectInvitation handles POST /api/v1/invitations/{id}/reject
func (s *Server) rejectInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	inv, err := s.invitations.Get(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := s.invitations.Reject(r.Context(), inv); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
