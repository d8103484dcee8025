package sso

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCProvider implements OpenID Connect login. Profiles are mapped from the
// verified ID token claims.
type OIDCProvider struct {
	config       *ProviderConfig
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider discovers the issuer and creates a provider
func NewOIDCProvider(ctx context.Context, config *ProviderConfig) (*OIDCProvider, error) {
	if err := validateOIDCConfig(config.OIDC); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, config.OIDC.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        config.OIDC.ClientID,
		SkipIssuerCheck: config.OIDC.SkipIssuerCheck,
	})

	return &OIDCProvider{
		config:   config,
		verifier: verifier,
		oauth2Config: &oauth2.Config{
			ClientID:     config.OIDC.ClientID,
			ClientSecret: config.OIDC.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  config.OIDC.RedirectURL,
			Scopes:       config.OIDC.Scopes,
		},
	}, nil
}

// Name returns the configured provider name
func (p *OIDCProvider) Name() string {
	return p.config.Name
}

// AuthCodeURL returns the authorization endpoint URL
func (p *OIDCProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// Exchange trades code for tokens and maps the verified ID token claims
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	profile := mapProfile(p.config.Name, claims, p.config.AttributeMapping, p.config.TrustEmail)
	profile.Token = oauth2Token.AccessToken
	if profile.ExternalID == "" {
		profile.ExternalID = idToken.Subject
	}
	if err := validateProfile(profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func validateOIDCConfig(cfg *OIDCConfig) error {
	if cfg == nil {
		return fmt.Errorf("OIDC config is required")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if cfg.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if cfg.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}

	for _, scope := range cfg.Scopes {
		if scope == oidc.ScopeOpenID {
			return nil
		}
	}
	return fmt.Errorf("'openid' scope is required for OIDC")
}
