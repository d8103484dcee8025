package sso

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// mapProfile builds a Profile from a decoded userinfo document or claim set
func mapProfile(provider string, data map[string]interface{}, m AttributeMap, trustEmail bool) *Profile {
	p := &Profile{
		Provider:    provider,
		ExternalID:  getStringValue(data, m.ExternalID),
		Email:       strings.TrimSpace(getStringValue(data, m.Email)),
		Name:        getStringValue(data, m.Name),
		FirstName:   getStringValue(data, m.FirstName),
		LastName:    getStringValue(data, m.LastName),
		Gender:      getStringValue(data, m.Gender),
		Locale:      getStringValue(data, m.Locale),
		Timezone:    getStringValue(data, m.Timezone),
		AvatarURL:   getStringValue(data, m.AvatarURL),
		ProfileLink: getStringValue(data, m.ProfileLink),
		Attributes:  make(map[string]string, len(data)),
	}

	if verified, ok := getBoolValue(data, m.EmailVerified); ok {
		p.EmailVerified = verified
	} else {
		p.EmailVerified = trustEmail
	}

	for k, v := range data {
		if str, ok := v.(string); ok {
			p.Attributes[k] = str
		} else {
			jsonBytes, _ := json.Marshal(v)
			p.Attributes[k] = string(jsonBytes)
		}
	}
	return p
}

func validateProfile(p *Profile) error {
	if p.ExternalID == "" {
		return fmt.Errorf("missing user ID in %s response", p.Provider)
	}
	return nil
}

func getStringValue(data map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		// numeric ids decode as float64
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func getBoolValue(data map[string]interface{}, key string) (bool, bool) {
	if key == "" {
		return false, false
	}
	switch v := data[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b && err == nil, err == nil
	default:
		return false, false
	}
}
