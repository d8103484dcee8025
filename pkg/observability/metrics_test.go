package observability

import (
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.OrganizationCreated()
	m.MemberAdded()
	m.MemberRemoved()
	m.OrganizationSwitched(nil)
	m.InvitationTransition("pending")
	m.EventHandled("organization.created", nil)
	m.RoleCacheLookup(true)
	m.RecordDBStats(sql.DBStats{})
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.OrganizationCreated()
	m.OrganizationCreated()
	m.MemberAdded()
	m.OrganizationSwitched(nil)
	m.OrganizationSwitched(errors.New("no role"))
	m.InvitationTransition("accepted")
	m.EventHandled("invitation.created", errors.New("mailer down"))
	m.RoleCacheLookup(false)
	m.RecordDBStats(sql.DBStats{InUse: 3, Idle: 2})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrganizationsCreatedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MembersAddedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrganizationSwitchesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrganizationSwitchesTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvitationsTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsHandledTotal.WithLabelValues("invitation.created", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoleCacheLookupsTotal.WithLabelValues("miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DBConnectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DBConnectionsIdle))
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/api/v1/users/{id}/roles", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/u1/roles", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/users/{id}/roles", "418")))

	rec := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "tenancy_http_requests_total"))
}
