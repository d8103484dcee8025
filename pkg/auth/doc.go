// Package auth defines the identity and membership data model.
//
// # Overview
//
// A User can belong to any number of Organizations. Each membership is recorded
// as a Role entity that binds exactly one user to exactly one organization with
// a list of role-strings such as ROLE_ORGANIZATION_OWNER. At any time a user
// operates under at most one active organization and the matching active role.
//
// Entities reference each other by ID only. Contacts are owned by the user or
// organization that embeds them; an organization's contact starts as a Clone of
// its owner's contact and evolves independently afterwards.
//
// # Invitations
//
// An Invitation offers an email address membership of an organization:
//
//	pending -> accepted | rejected | expired
//
// Terminal states are final. The secret Hash generated by GenerateSecretHash is
// the lookup token carried through the signup flow.
//
// # Related Packages
//
//   - pkg/orgs: membership engine and invitation workflow
//   - pkg/rbac: effective role resolution
//   - pkg/storage: persistence of these entities
package auth
