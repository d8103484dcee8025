package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Membership metrics
	OrganizationsCreatedTotal prometheus.Counter
	MembersAddedTotal         prometheus.Counter
	MembersRemovedTotal       prometheus.Counter
	OrganizationSwitchesTotal *prometheus.CounterVec
	InvitationsTotal          *prometheus.CounterVec

	// Event metrics
	EventsHandledTotal *prometheus.CounterVec

	// Cache metrics
	RoleCacheLookupsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenancy_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenancy_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		OrganizationsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenancy_organizations_created_total",
				Help: "Total number of organizations created",
			},
		),
		MembersAddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenancy_members_added_total",
				Help: "Total number of memberships created",
			},
		),
		MembersRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenancy_members_removed_total",
				Help: "Total number of memberships removed",
			},
		),
		OrganizationSwitchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenancy_organization_switches_total",
				Help: "Total number of active organization switches",
			},
			[]string{"result"},
		),
		InvitationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenancy_invitations_total",
				Help: "Total number of invitations entering each status",
			},
			[]string{"status"},
		),

		EventsHandledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenancy_events_handled_total",
				Help: "Total number of event handler invocations",
			},
			[]string{"event", "status"},
		),

		RoleCacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenancy_role_cache_lookups_total",
				Help: "Total number of effective role cache lookups",
			},
			[]string{"result"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenancy_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenancy_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OrganizationsCreatedTotal,
		m.MembersAddedTotal,
		m.MembersRemovedTotal,
		m.OrganizationSwitchesTotal,
		m.InvitationsTotal,
		m.EventsHandledTotal,
		m.RoleCacheLookupsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// OrganizationCreated counts a committed organization
func (m *Metrics) OrganizationCreated() {
	if m == nil {
		return
	}
	m.OrganizationsCreatedTotal.Inc()
}

// MemberAdded counts a committed membership
func (m *Metrics) MemberAdded() {
	if m == nil {
		return
	}
	m.MembersAddedTotal.Inc()
}

// MemberRemoved counts a removed membership
func (m *Metrics) MemberRemoved() {
	if m == nil {
		return
	}
	m.MembersRemovedTotal.Inc()
}

// OrganizationSwitched counts a switch attempt by outcome
func (m *Metrics) OrganizationSwitched(err error) {
	if m == nil {
		return
	}
	m.OrganizationSwitchesTotal.WithLabelValues(resultLabel(err)).Inc()
}

// InvitationTransition counts an invitation entering status
func (m *Metrics) InvitationTransition(status string) {
	if m == nil {
		return
	}
	m.InvitationsTotal.WithLabelValues(status).Inc()
}

// EventHandled counts an event handler invocation by outcome
func (m *Metrics) EventHandled(name string, err error) {
	if m == nil {
		return
	}
	m.EventsHandledTotal.WithLabelValues(name, resultLabel(err)).Inc()
}

// RoleCacheLookup counts an effective role cache hit or miss
func (m *Metrics) RoleCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RoleCacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordDBStats updates the connection pool gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled with the mux route template when available.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
