package sso

import (
	"context"
	"fmt"
)

// Provider exchanges authorization codes for profiles
type Provider interface {
	// Name identifies the provider in AuthData and events
	Name() string

	// AuthCodeURL returns the authorization endpoint URL for state
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for the user's profile
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// NewProvider creates a provider from configuration. OIDC providers run
// discovery against the issuer, so ctx bounds that request.
func NewProvider(ctx context.Context, config *ProviderConfig) (Provider, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	switch config.Type {
	case ProviderTypeOAuth2:
		return NewOAuth2Provider(config)
	case ProviderTypeOIDC:
		return NewOIDCProvider(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.Type)
	}
}

// GetPresetConfig returns attribute mappings and endpoints of well-known
// providers. Credentials and redirect URL still need to be filled in.
func GetPresetConfig(name string) (*ProviderConfig, error) {
	switch name {
	case "google":
		return &ProviderConfig{
			Name: "google",
			Type: ProviderTypeOIDC,
			AttributeMapping: AttributeMap{
				ExternalID:    "sub",
				Email:         "email",
				EmailVerified: "email_verified",
				Name:          "name",
				FirstName:     "given_name",
				LastName:      "family_name",
				Locale:        "locale",
				AvatarURL:     "picture",
			},
			OIDC: &OIDCConfig{
				IssuerURL: "https://accounts.google.com",
				Scopes:    []string{"openid", "profile", "email"},
			},
		}, nil

	case "github":
		return &ProviderConfig{
			Name: "github",
			Type: ProviderTypeOAuth2,
			AttributeMapping: AttributeMap{
				ExternalID:  "id",
				Email:       "email",
				Name:        "name",
				AvatarURL:   "avatar_url",
				ProfileLink: "html_url",
			},
			OAuth2: &OAuth2Config{
				AuthURL:     "https://github.com/login/oauth/authorize",
				TokenURL:    "https://github.com/login/oauth/access_token",
				UserInfoURL: "https://api.github.com/user",
				Scopes:      []string{"read:user", "user:email"},
			},
		}, nil

	case "facebook":
		return &ProviderConfig{
			Name: "facebook",
			Type: ProviderTypeOAuth2,
			AttributeMapping: AttributeMap{
				ExternalID:  "id",
				Email:       "email",
				Name:        "name",
				FirstName:   "first_name",
				LastName:    "last_name",
				Gender:      "gender",
				Locale:      "locale",
				Timezone:    "timezone",
				ProfileLink: "link",
			},
			TrustEmail: true,
			OAuth2: &OAuth2Config{
				AuthURL:     "https://www.facebook.com/v19.0/dialog/oauth",
				TokenURL:    "https://graph.facebook.com/v19.0/oauth/access_token",
				UserInfoURL: "https://graph.facebook.com/me?fields=id,email,name,first_name,last_name,gender,locale,timezone,link",
				Scopes:      []string{"email", "public_profile"},
			},
		}, nil

	default:
		return nil, fmt.Errorf("no preset configuration for provider: %s", name)
	}
}
