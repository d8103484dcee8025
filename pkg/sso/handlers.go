package sso

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/httputil"
	"github.com/platinummonkey/tenancy/pkg/observability"
)

// Handlers exposes the login redirect and the code callback. State
// verification belongs to the session layer in front of these routes.
type Handlers struct {
	providers map[string]Provider
	users     *UserProvider
}

// NewHandlers creates SSO handlers for the given providers
func NewHandlers(users *UserProvider, providers ...Provider) *Handlers {
	h := &Handlers{
		providers: make(map[string]Provider, len(providers)),
		users:     users,
	}
	for _, p := range providers {
		h.providers[p.Name()] = p
	}
	return h
}

// RegisterRoutes registers SSO routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sso/{provider}/login", h.initiateLogin).Methods(http.MethodGet)
	router.HandleFunc("/sso/{provider}/callback", h.handleCallback).Methods(http.MethodPost)
}

// CallbackRequest is the body of the callback route
type CallbackRequest struct {
	Code           string `json:"code"`
	InvitationHash string `json:"invitation_hash,omitempty"`
	Locale         string `json:"locale,omitempty"`
}

func (h *Handlers) provider(w http.ResponseWriter, r *http.Request) (Provider, bool) {
	name, ok := httputil.ParsePathStringOrError(w, r, "provider")
	if !ok {
		return nil, false
	}
	p, ok := h.providers[name]
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "unknown provider: "+name)
		return nil, false
	}
	return p, true
}

// initiateLogin handles GET /sso/{provider}/login
func (h *Handlers) initiateLogin(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}
	state := r.URL.Query().Get("state")
	if state == "" {
		httputil.WriteBadRequest(w, "state is required")
		return
	}
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// handleCallback handles POST /sso/{provider}/callback
func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}
	var req CallbackRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Code == "" {
		httputil.WriteBadRequest(w, "code is required")
		return
	}

	profile, err := p.Exchange(r.Context(), req.Code)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).WithField("provider", p.Name()).Warn("OAuth exchange failed")
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	user, err := h.users.LoadUser(r.Context(), auth.SignupContext{
		InvitationHash: req.InvitationHash,
		Locale:         req.Locale,
	}, profile)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, user)
}
