package sso

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapProfile(t *testing.T) {
	m := AttributeMap{
		ExternalID:    "id",
		Email:         "email",
		EmailVerified: "verified",
		Name:          "name",
		FirstName:     "given_name",
		LastName:      "family_name",
		AvatarURL:     "picture",
	}

	tests := []struct {
		name         string
		data         map[string]interface{}
		trustEmail   bool
		wantID       string
		wantVerified bool
	}{
		{
			name:         "numeric id and bool verification",
			data:         map[string]interface{}{"id": float64(12345), "email": "jane@example.com", "verified": true},
			wantID:       "12345",
			wantVerified: true,
		},
		{
			name:         "string verification",
			data:         map[string]interface{}{"id": "abc", "email": "jane@example.com", "verified": "false"},
			trustEmail:   true,
			wantID:       "abc",
			wantVerified: false,
		},
		{
			name:         "missing verification falls back to trust",
			data:         map[string]interface{}{"id": "abc", "email": "jane@example.com"},
			trustEmail:   true,
			wantID:       "abc",
			wantVerified: true,
		},
		{
			name:         "missing verification without trust",
			data:         map[string]interface{}{"id": "abc"},
			wantID:       "abc",
			wantVerified: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mapProfile("test", tt.data, m, tt.trustEmail)
			assert.Equal(t, "test", p.Provider)
			assert.Equal(t, tt.wantID, p.ExternalID)
			assert.Equal(t, tt.wantVerified, p.EmailVerified)
		})
	}
}

func TestMapProfile_FieldsAndAttributes(t *testing.T) {
	data := map[string]interface{}{
		"id":          "abc",
		"email":       " jane@example.com ",
		"name":        "Jane Doe",
		"given_name":  "Jane",
		"family_name": "Doe",
		"picture":     "https://example.com/jane.png",
		"groups":      []interface{}{"admins"},
	}
	p := mapProfile("test", data, AttributeMap{
		ExternalID: "id", Email: "email", Name: "name", FirstName: "given_name",
		LastName: "family_name", AvatarURL: "picture",
	}, false)

	assert.Equal(t, "jane@example.com", p.Email)
	assert.Equal(t, "Jane", p.GivenName())
	assert.Equal(t, "Doe", p.LastName)
	assert.Equal(t, "https://example.com/jane.png", p.AvatarURL)
	assert.Equal(t, `["admins"]`, p.Attributes["groups"])
	assert.Error(t, validateProfile(&Profile{Provider: "test"}))
}

func TestGivenNameFallsBackToName(t *testing.T) {
	p := &Profile{Name: "Jane Doe"}
	assert.Equal(t, "Jane Doe", p.GivenName())
}
