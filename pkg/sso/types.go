package sso

// ProviderType represents the SSO protocol
type ProviderType string

const (
	ProviderTypeOAuth2 ProviderType = "oauth2"
	ProviderTypeOIDC   ProviderType = "oidc"
)

// ProviderConfig configures one login provider
type ProviderConfig struct {
	Name             string        `json:"name" yaml:"name"`
	Type             ProviderType  `json:"type" yaml:"type"`
	OAuth2           *OAuth2Config `json:"oauth2,omitempty" yaml:"oauth2"`
	OIDC             *OIDCConfig   `json:"oidc,omitempty" yaml:"oidc"`
	AttributeMapping AttributeMap  `json:"attribute_mapping" yaml:"attribute_mapping"`
	// TrustEmail treats emails as verified when the mapped document has no
	// verification attribute
	TrustEmail bool `json:"trust_email" yaml:"trust_email"`
}

// OAuth2Config holds OAuth2 configuration
type OAuth2Config struct {
	ClientID     string   `json:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"-" yaml:"client_secret"`
	AuthURL      string   `json:"auth_url" yaml:"auth_url"`
	TokenURL     string   `json:"token_url" yaml:"token_url"`
	UserInfoURL  string   `json:"user_info_url" yaml:"user_info_url"`
	RedirectURL  string   `json:"redirect_url" yaml:"redirect_url"`
	Scopes       []string `json:"scopes" yaml:"scopes"`
}

// OIDCConfig holds OpenID Connect configuration
type OIDCConfig struct {
	ClientID        string   `json:"client_id" yaml:"client_id"`
	ClientSecret    string   `json:"-" yaml:"client_secret"`
	IssuerURL       string   `json:"issuer_url" yaml:"issuer_url"`
	RedirectURL     string   `json:"redirect_url" yaml:"redirect_url"`
	Scopes          []string `json:"scopes" yaml:"scopes"`
	SkipIssuerCheck bool     `json:"skip_issuer_check,omitempty" yaml:"skip_issuer_check"`
}

// AttributeMap names the provider attributes each Profile field is read from
type AttributeMap struct {
	ExternalID    string `json:"external_id" yaml:"external_id"`
	Email         string `json:"email" yaml:"email"`
	EmailVerified string `json:"email_verified,omitempty" yaml:"email_verified"`
	Name          string `json:"name,omitempty" yaml:"name"`
	FirstName     string `json:"first_name,omitempty" yaml:"first_name"`
	LastName      string `json:"last_name,omitempty" yaml:"last_name"`
	Gender        string `json:"gender,omitempty" yaml:"gender"`
	Locale        string `json:"locale,omitempty" yaml:"locale"`
	Timezone      string `json:"timezone,omitempty" yaml:"timezone"`
	AvatarURL     string `json:"avatar_url,omitempty" yaml:"avatar_url"`
	ProfileLink   string `json:"profile_link,omitempty" yaml:"profile_link"`
}

// Profile is the provider independent user record a login produces
type Profile struct {
	Provider      string            `json:"provider"`
	ExternalID    string            `json:"external_id"`
	Token         string            `json:"-"`
	Email         string            `json:"email"`
	EmailVerified bool              `json:"email_verified"`
	Name          string            `json:"name,omitempty"`
	FirstName     string            `json:"first_name,omitempty"`
	LastName      string            `json:"last_name,omitempty"`
	Gender        string            `json:"gender,omitempty"`
	Locale        string            `json:"locale,omitempty"`
	Timezone      string            `json:"timezone,omitempty"`
	AvatarURL     string            `json:"avatar_url,omitempty"`
	ProfileLink   string            `json:"profile_link,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// GivenName returns the first name, falling back to the display name
func (p *Profile) GivenName() string {
	if p.FirstName != "" {
		return p.FirstName
	}
	return p.Name
}
