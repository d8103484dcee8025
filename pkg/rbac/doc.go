// Package rbac resolves the effective role set of a user.
//
// EffectiveRoles is a pure function: the directly assigned roles, any group
// roles and the roles of the active membership are merged with ROLE_DEFAULT,
// deduplicated and sorted. Every user, even one without memberships, holds
// ROLE_DEFAULT.
//
// Authorizer loads the active membership from the store, caches the result
// per user in an expiring LRU and offers IsGranted checks. The membership
// engine calls Invalidate after switching a user's active organization.
package rbac
