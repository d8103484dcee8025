// Package signup bootstraps the organization membership of new users.
//
// Local registrations and OAuth signups both end in the same sequence: the
// user joins the organization named by an invitation hash, or gets a new
// organization of their own, notification subscriptions are updated and the
// organization is switched to so the active role is fresh.
package signup
