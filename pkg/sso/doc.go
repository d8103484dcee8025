// Package sso turns OAuth2 and OpenID Connect logins into tenancy users.
//
// Providers exchange an authorization code and map the provider's user
// document to a Profile through a configured AttributeMap. UserProvider then
// finds or creates the matching user:
//
//  1. by email, when the provider verified it
//  2. by the provider's external id
//  3. otherwise a new user is created from the profile, user.oauth_signup is
//     published and the signup bootstrap runs
//
// Every successful login updates the user's provider credentials and
// publishes user.oauth_login.
//
// Provider specific response parsing is limited to the attribute map; there
// is no per-provider code.
package sso
