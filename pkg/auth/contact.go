package auth

// Avatar holds the sources an avatar image can be rendered from
type Avatar struct {
	GravatarEmail string `json:"gravatar_email,omitempty"`
	SocialURL     string `json:"social_url,omitempty"`
}

// Contact is the denormalized profile embedded in users and organizations
type Contact struct {
	Type              string                       `json:"type,omitempty"`
	Name              string                       `json:"name,omitempty"`
	LastNames         string                       `json:"last_names,omitempty"`
	Gender            string                       `json:"gender,omitempty"`
	DocumentCountry   string                       `json:"document_country,omitempty"`
	DocumentType      string                       `json:"document_type,omitempty"`
	DocumentID        string                       `json:"document_id,omitempty"`
	Country           string                       `json:"country,omitempty"`
	Province          string                       `json:"province,omitempty"`
	City              string                       `json:"city,omitempty"`
	Region            string                       `json:"region,omitempty"`
	Address           string                       `json:"address,omitempty"`
	Zip               string                       `json:"zip,omitempty"`
	Email             string                       `json:"email,omitempty"`
	Phone             string                       `json:"phone,omitempty"`
	CellPhone         string                       `json:"cell_phone,omitempty"`
	Web               string                       `json:"web,omitempty"`
	Locale            string                       `json:"locale,omitempty"`
	Timezone          string                       `json:"timezone,omitempty"`
	SelectedLanguage  string                       `json:"selected_language,omitempty"`
	PreferredLanguage string                       `json:"preferred_language,omitempty"`
	ServiceProfiles   map[string]map[string]string `json:"service_profiles,omitempty"`
	Avatar            *Avatar                      `json:"avatar,omitempty"`
}

// FullName joins name and last names
func (c *Contact) FullName() string {
	switch {
	case c.Name == "":
		return c.LastNames
	case c.LastNames == "":
		return c.Name
	default:
		return c.Name + " " + c.LastNames
	}
}

// SetServiceProfile stores per-service profile data such as a profile link
func (c *Contact) SetServiceProfile(service string, data map[string]string) {
	if c.ServiceProfiles == nil {
		c.ServiceProfiles = make(map[string]map[string]string)
	}
	c.ServiceProfiles[service] = data
}

// Clone returns an independent deep copy. Organizations start from a clone of
// their owner's contact and must not share maps or the avatar with it.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}
	out := *c
	if c.ServiceProfiles != nil {
		out.ServiceProfiles = make(map[string]map[string]string, len(c.ServiceProfiles))
		for service, data := range c.ServiceProfiles {
			inner := make(map[string]string, len(data))
			for k, v := range data {
				inner[k] = v
			}
			out.ServiceProfiles[service] = inner
		}
	}
	if c.Avatar != nil {
		a := *c.Avatar
		out.Avatar = &a
	}
	return &out
}
