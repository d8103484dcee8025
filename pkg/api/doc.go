// Package api exposes the membership core over a JSON HTTP API.
//
// # Overview
//
// Server wires the organization, membership and invitation operations of
// package orgs and the effective role lookup of package rbac to gorilla/mux
// routes under /api/v1. Errors returned by the core are translated with
// httputil.WriteAppError, so validation failures surface as 422 with the
// offending field, unknown entities as 404 and conflicts as 409.
//
// Authentication is handled in front of this package. Handlers take the
// acting user from the request path or body.
//
// # Routes
//
//	POST   /api/v1/organizations
//	GET    /api/v1/organizations/{id}
//	GET    /api/v1/organizations/{id}/members
//	POST   /api/v1/organizations/{id}/members
//	DELETE /api/v1/organizations/{id}/members/{user_id}
//	POST   /api/v1/organizations/{id}/invitations
//	GET    /api/v1/organizations/{id}/invitations
//	POST   /api/v1/invitations/{hash}/accept
//	POST   /api/v1/invitations/{id}/reject
//	GET    /api/v1/users/{id}/organizations
//	PUT    /api/v1/users/{id}/active-organization
//	GET    /api/v1/users/{id}/roles
//	GET    /api/v1/users/{id}/invitations
//	POST   /api/v1/users/{id}/registration/confirm
//
// When configured, the server also serves /health/live, /health/ready,
// /metrics and the SSO login routes under /api/v1/sso.
//
// # Usage
//
//	srv := api.NewServer(svc, authorizer, logger, api.Options{
//		Health:   observability.NewHealthChecker(store, redisClient, version),
//		Metrics:  metrics,
//		Registry: registry,
//	})
//	http.ListenAndServe(":8080", srv)
package api
