// Package orgs implements organization membership for tenancy.
//
// # Overview
//
// A user belongs to zero or more organizations. Each membership is a Role
// record holding the role-strings the user has inside that organization. At
// most one organization is active per user and the active role always belongs
// to the active organization.
//
// The package has three parts:
//
//   - Service creates organizations, adds and removes members and switches the
//     active organization.
//   - Invitations drives the invitation state machine
//     (pending -> accepted | rejected | expired).
//   - Sweeper expires stale pending invitations on a cron schedule.
//
// # Usage
//
//	svc := orgs.NewService(store, bus, logger,
//	    orgs.WithSessionRefresher(authorizer),
//	    orgs.WithMetrics(metrics),
//	)
//
//	org, err := svc.CreateOrganization(ctx, user)
//	if err != nil {
//	    return err
//	}
//
//	inv, err := svc.Invitations().Create(ctx, org, user, "jane@example.com", []string{"ROLE_ORGANIZATION_MEMBER"}, "en")
//
// # Concurrency
//
// Every operation runs its writes inside a single store transaction. Two
// concurrent invitations for the same email and organization are arbitrated by
// the store's unique index, and acceptance is a compare-and-swap on the
// invitation status so an invitation turns into at most one membership.
//
// Events are published only after the transaction commits.
package orgs
