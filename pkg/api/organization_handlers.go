package api

import (
	"net/http"

	"github.com/platinummonkey/tenancy/pkg/apperr"
	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/httputil"
)

// loadUser resolves a user id taken from the path or body, writing the error response on failure
func (s *Server) loadUser(w http.ResponseWriter, r *http.Request, field, id string) (*auth.User, bool) {
	if id == "" {
		httputil.WriteAppError(w, r, apperr.Validation(field, field+" is required"))
		return nil, false
	}
	user, err := s.orgs.User(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return nil, false
	}
	return user, true
}

func (s *Server) loadOrganization(w http.ResponseWriter, r *http.Request, field, id string) (*auth.Organization, bool) {
	if id == "" {
		httputil.WriteAppError(w, r, apperr.Validation(field, field+" is required"))
		return nil, false
	}
	org, err := s.orgs.Organization(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return nil, false
	}
	return org, true
}

func (s *Server) pathOrganization(w http.ResponseWriter, r *http.Request) (*auth.Organization, bool) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return nil, false
	}
	return s.loadOrganization(w, r, "id", id)
}

func (s *Server) pathUser(w http.ResponseWriter, r *http.Request, key string) (*auth.User, bool) {
	id, ok := httputil.ParsePathStringOrError(w, r, key)
	if !ok {
		return nil, false
	}
	return s.loadUser(w, r, key, id)
}

// createOrganization handles POST /api/v1/organizations
func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	user, ok := s.loadUser(w, r, "user_id", req.UserID)
	if !ok {
		return
	}

	org, err := s.orgs.CreateOrganization(r.Context(), user)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, org)
}

// getOrganization handles GET /api/v1/organizations/{id}
func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, ok := s.pathOrganization(w, r)
	if !ok {
		return
	}
	_ = httputil.WriteSuccess(w, org)
}

// listMembers handles GET /api/v1/organizations/{id}/members
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	org, ok := s.pathOrganization(w, r)
	if !ok {
		return
	}
	members, err := s.orgs.Members(r.Context(), org)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, members)
}

// addMember handles POST /api/v1/organizations/{id}/members
func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	org, ok := s.pathOrganization(w, r)
	if !ok {
		return
	}
	var req AddMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	user, ok := s.loadUser(w, r, "user_id", req.UserID)
	if !ok {
		return
	}

	if err := s.orgs.AddMember(r.Context(), org, user, req.Roles); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	role, err := s.orgs.OrganizationRole(r.Context(), user, org)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, role)
}

// removeMember handles DELETE /api/v1/organizations/{id}/members/{user_id}
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	org, ok := s.pathOrganization(w, r)
	if !ok {
		return
	}
	user, ok := s.pathUser(w, r, "user_id")
	if !ok {
		return
	}
	if err := s.orgs.RemoveMember(r.Context(), org, user); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
