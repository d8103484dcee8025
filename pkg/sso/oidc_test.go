package sso

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOIDCConfig(issuer string) *OIDCConfig {
	return &OIDCConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-secret",
		IssuerURL:    issuer,
		RedirectURL:  "https://tenancy.example.com/callback",
		Scopes:       []string{"openid", "profile", "email"},
	}
}

func TestNewOIDCProvider_ValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *OIDCConfig)
		errorMsg string
	}{
		{name: "missing client_id", mutate: func(c *OIDCConfig) { c.ClientID = "" }, errorMsg: "client_id is required"},
		{name: "missing client_secret", mutate: func(c *OIDCConfig) { c.ClientSecret = "" }, errorMsg: "client_secret is required"},
		{name: "missing issuer_url", mutate: func(c *OIDCConfig) { c.IssuerURL = "" }, errorMsg: "issuer_url is required"},
		{name: "missing redirect_url", mutate: func(c *OIDCConfig) { c.RedirectURL = "" }, errorMsg: "redirect_url is required"},
		{name: "missing openid scope", mutate: func(c *OIDCConfig) { c.Scopes = []string{"profile"} }, errorMsg: "'openid' scope is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validOIDCConfig("https://provider.com")
			tt.mutate(cfg)
			_, err := NewOIDCProvider(context.Background(), &ProviderConfig{Name: "okta", Type: ProviderTypeOIDC, OIDC: cfg})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func newDiscoveryServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                srv.URL,
			"authorization_endpoint":                srv.URL + "/authorize",
			"token_endpoint":                        srv.URL + "/token",
			"jwks_uri":                              srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-123","token_type":"bearer"}`))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOIDCProvider_Discovery(t *testing.T) {
	srv := newDiscoveryServer(t)

	provider, err := NewOIDCProvider(context.Background(), &ProviderConfig{
		Name: "okta",
		Type: ProviderTypeOIDC,
		OIDC: validOIDCConfig(srv.URL),
	})
	require.NoError(t, err)
	assert.Equal(t, "okta", provider.Name())
	assert.Contains(t, provider.AuthCodeURL("s1"), srv.URL+"/authorize?")

	_, err = provider.Exchange(context.Background(), "code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id_token")
}

func TestOIDCProvider_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewOIDCProvider(context.Background(), &ProviderConfig{
		Name: "okta",
		Type: ProviderTypeOIDC,
		OIDC: validOIDCConfig(srv.URL),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to discover OIDC provider")
}
