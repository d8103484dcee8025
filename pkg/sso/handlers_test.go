package sso

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenancy/pkg/auth"
)

type fakeProvider struct {
	name     string
	profiles map[string]*Profile
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*Profile, error) {
	profile, ok := p.profiles[code]
	if !ok {
		return nil, errors.New("invalid_grant")
	}
	return profile, nil
}

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	env := newProviderEnv(t)
	provider := &fakeProvider{
		name: "github",
		profiles: map[string]*Profile{
			"good":     githubProfile("jane@example.com", true),
			"no-email": {Provider: "github", ExternalID: "99"},
		},
	}
	router := mux.NewRouter()
	NewHandlers(env.users, provider).RegisterRoutes(router)
	return router
}

func TestHandlers_Login(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantLoc    string
	}{
		{name: "redirects", path: "/sso/github/login?state=abc", wantStatus: http.StatusFound, wantLoc: "https://idp.example.com/authorize?state=abc"},
		{name: "state required", path: "/sso/github/login", wantStatus: http.StatusBadRequest},
		{name: "unknown provider", path: "/sso/myspace/login?state=abc", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantLoc != "" {
				assert.Equal(t, tt.wantLoc, w.Header().Get("Location"))
			}
		})
	}
}

func TestHandlers_Callback(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "success", body: `{"code":"good","locale":"es"}`, wantStatus: http.StatusOK},
		{name: "code required", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"code":"good","extra":1}`, wantStatus: http.StatusBadRequest},
		{name: "exchange failure", body: `{"code":"bad"}`, wantStatus: http.StatusUnauthorized},
		{name: "profile without email", body: `{"code":"no-email"}`, wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sso/github/callback", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantStatus == http.StatusOK {
				var user auth.User
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
				assert.Equal(t, "jane@example.com", user.Email)
				assert.NotEmpty(t, user.ActiveOrganizationID)
			}
		})
	}
}
