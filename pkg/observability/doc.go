// Package observability provides logging, metrics, tracing and health checks.
//
// # Logging
//
// NewLogger builds a logrus JSON logger. Request scoped entries are carried in
// the context; FromContext adds request_id, user_id and trace identifiers:
//
//	observability.FromContext(ctx).WithField("organization_id", org.ID).Info("Organization created")
//
// # Metrics
//
// Metrics registers Prometheus collectors for HTTP traffic and membership
// activity. Every recording method is safe on a nil *Metrics so services can
// run without instrumentation in tests.
//
// # Tracing
//
// InitOTel configures OTLP gRPC exporters for traces and metrics. Tracer
// returns the module tracer; before InitOTel it is a no-op.
//
// # Health
//
// HealthChecker serves liveness and readiness checks over the store and the
// optional Redis event queue.
package observability
