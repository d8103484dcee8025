package rbac

import (
	"fmt"
	"sort"

	"github.com/platinummonkey/tenancy/pkg/auth"
)

// ConsistencyViolation reports an active role that does not belong to the
// user's active organization. It indicates a programming error, so
// EffectiveRoles panics with it rather than returning it.
type ConsistencyViolation struct {
	UserID               string
	ActiveOrganizationID string
	RoleID               string
	RoleOrganizationID   string
}

func (e *ConsistencyViolation) Error() string {
	return fmt.Sprintf("active role %s of user %s belongs to organization %s, active organization is %q",
		e.RoleID, e.UserID, e.RoleOrganizationID, e.ActiveOrganizationID)
}

// CheckActiveRole returns a *ConsistencyViolation when activeRole is set and
// belongs to another organization than the user's active one.
func CheckActiveRole(user *auth.User, activeRole *auth.Role) error {
	if activeRole == nil || activeRole.OrganizationID == user.ActiveOrganizationID {
		return nil
	}
	return &ConsistencyViolation{
		UserID:               user.ID,
		ActiveOrganizationID: user.ActiveOrganizationID,
		RoleID:               activeRole.ID,
		RoleOrganizationID:   activeRole.OrganizationID,
	}
}

// EffectiveRoles returns the sorted union of the user's directly assigned
// roles, the group roles, the active role's roles and ROLE_DEFAULT.
//
// It panics with *ConsistencyViolation when activeRole belongs to another
// organization than user.ActiveOrganizationID.
func EffectiveRoles(user *auth.User, activeRole *auth.Role, groupRoles []string) []string {
	if err := CheckActiveRole(user, activeRole); err != nil {
		panic(err)
	}

	seen := map[string]struct{}{auth.RoleDefault: {}}
	for _, r := range user.Roles {
		seen[r] = struct{}{}
	}
	for _, r := range groupRoles {
		seen[r] = struct{}{}
	}
	if activeRole != nil {
		for _, r := range activeRole.Roles {
			seen[r] = struct{}{}
		}
	}

	roles := make([]string, 0, len(seen))
	for r := range seen {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}
