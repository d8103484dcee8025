package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tenancy/pkg/httputil"
	"github.com/platinummonkey/tenancy/pkg/observability"
	"github.com/platinummonkey/tenancy/pkg/orgs"
	"github.com/platinummonkey/tenancy/pkg/rbac"
	"github.com/platinummonkey/tenancy/pkg/signup"
	"github.com/platinummonkey/tenancy/pkg/sso"
)

// DefaultMaxBodyBytes limits request bodies when Options.MaxBodyBytes is unset
const DefaultMaxBodyBytes = 1 << 20

// Options configures the optional parts of the server
type Options struct {
	SSO          *sso.Handlers
	Signup       *signup.Bootstrapper
	Health       *observability.HealthChecker
	Metrics      *observability.Metrics
	Registry     *prometheus.Registry
	MaxBodyBytes int64
}

// Server represents the API server
type Server struct {
	router      *mux.Router
	handler     http.Handler
	orgs        *orgs.Service
	invitations *orgs.Invitations
	authorizer  *rbac.Authorizer
	signup      *signup.Bootstrapper
	logger      *logrus.Logger
}

// NewServer creates a new API server
func NewServer(svc *orgs.Service, authorizer *rbac.Authorizer, logger *logrus.Logger, opts Options) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		router:      mux.NewRouter(),
		orgs:        svc,
		invitations: svc.Invitations(),
		authorizer:  authorizer,
		signup:      opts.Signup,
		logger:      logger,
	}
	s.setupRoutes(opts)

	chain := httputil.Chain(
		httputil.RequestIDMiddleware(logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(opts.MaxBodyBytes),
	)(s.router)
	// Spans use the global tracer provider installed by observability.InitOTel
	s.handler = otelhttp.NewHandler(chain, "tenancy-api")
	return s
}

func (s *Server) setupRoutes(opts Options) {
	s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))

	if opts.Health != nil {
		s.router.HandleFunc("/health/live", opts.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/health/ready", opts.Health.Readiness).Methods(http.MethodGet)
	}
	if opts.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(opts.Registry)).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Organizations and membership
	v1.HandleFunc("/organizations", s.createOrganization).Methods(http.MethodPost)
	v1.HandleFunc("/organizations/{id}", s.getOrganization).Methods(http.MethodGet)
	v1.HandleFunc("/organizations/{id}/members", s.listMembers).Methods(http.MethodGet)
	v1.HandleFunc("/organizations/{id}/members", s.addMember).Methods(http.MethodPost)
	v1.HandleFunc("/organizations/{id}/members/{user_id}", s.removeMember).Methods(http.MethodDelete)

	// Invitations
	v1.HandleFunc("/organizations/{id}/invitations", s.createInvitation).Methods(http.MethodPost)
	v1.HandleFunc("/organizations/{id}/invitations", s.listOrganizationInvitations).Methods(http.MethodGet)
	v1.HandleFunc("/invitations/{hash}/accept", s.acceptInvitation).Methods(http.MethodPost)
	v1.HandleFunc("/invitations/{id}/reject", s.rejectInvitation).Methods(http.MethodPost)

	// Users
	v1.HandleFunc("/users/{id}/organizations", s.listUserOrganizations).Methods(http.MethodGet)
	v1.HandleFunc("/users/{id}/active-organization", s.switchOrganization).Methods(http.MethodPut)
	v1.HandleFunc("/users/{id}/roles", s.getUserRoles).Methods(http.MethodGet)
	v1.HandleFunc("/users/{id}/invitations", s.listUserInvitations).Methods(http.MethodGet)

	if s.signup != nil {
		v1.HandleFunc("/users/{id}/registration/confirm", s.confirmRegistration).Methods(http.MethodPost)
	}

	if opts.SSO != nil {
		opts.SSO.RegisterRoutes(v1)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
