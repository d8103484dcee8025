package orgs

import (
	"github.com/platinummonkey/tenancy/pkg/auth"
)

func appendUnique(values []string, v string) []string {
	for _, s := range values {
		if s == v {
			return values
		}
	}
	return append(values, v)
}

func removeString(values []string, v string) []string {
	out := values[:0:0]
	for _, s := range values {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// dedupe keeps the first occurrence of each non-empty string
func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = appendUnique(out, v)
		}
	}
	return out
}

// withoutOrganizationRoles drops every organization scoped role-string
func withoutOrganizationRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if !auth.IsOrganizationRole(r) {
			out = append(out, r)
		}
	}
	return out
}

// applyActiveRole makes role the user's active role. The user's organization
// scoped role-strings are replaced by the role's and both active references
// are set together.
func applyActiveRole(user *auth.User, role *auth.Role) {
	roles := withoutOrganizationRoles(user.Roles)
	for _, r := range role.Roles {
		roles = appendUnique(roles, r)
	}
	user.Roles = roles
	user.ActiveOrganizationID = role.OrganizationID
	user.ActiveRoleID = role.ID
}

// clearActiveRole removes the active organization and its role-strings
func clearActiveRole(user *auth.User) {
	user.Roles = withoutOrganizationRoles(user.Roles)
	user.ActiveOrganizationID = ""
	user.ActiveRoleID = ""
}
