package orgs

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenancy/pkg/apperr"
	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/observability"
	"github.com/platinummonkey/tenancy/pkg/storage"
)

// ErrInvitationNotFound is wrapped in the NotFound error returned when an
// invitation hash does not match a pending invitation
var ErrInvitationNotFound = errors.New("invitation not found")

// OrganizationFactory instantiates the organization created for a new owner.
// The engine assigns ID, owner, members and contact afterwards.
type OrganizationFactory interface {
	NewOrganization(owner *auth.User) *auth.Organization
}

// OrganizationFactoryFunc adapts a function to OrganizationFactory
type OrganizationFactoryFunc func(owner *auth.User) *auth.Organization

// NewOrganization calls f(owner)
func (f OrganizationFactoryFunc) NewOrganization(owner *auth.User) *auth.Organization {
	return f(owner)
}

// DefaultFactory creates enabled freelance organizations
var DefaultFactory OrganizationFactory = OrganizationFactoryFunc(func(*auth.User) *auth.Organization {
	return &auth.Organization{
		Type:    auth.OrganizationFreelance,
		Enabled: true,
	}
})

// SessionRefresher drops cached authorization state for a user so that a new
// active role takes effect immediately
type SessionRefresher interface {
	Invalidate(userID string)
}

type nopRefresher struct{}

func (nopRefresher) Invalidate(string) {}

// Option configures a Service
type Option func(*Service)

// WithFactory sets the organization factory
func WithFactory(f OrganizationFactory) Option {
	return func(s *Service) {
		if f != nil {
			s.factory = f
		}
	}
}

// WithSessionRefresher sets the refresher notified after a switch
func WithSessionRefresher(r SessionRefresher) Option {
	return func(s *Service) {
		if r != nil {
			s.sessions = r
		}
	}
}

// WithMetrics enables Prometheus counters
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides uuid generation
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithBlockedDomains sets the email domains invitations may not be sent to
func WithBlockedDomains(domains ...string) Option {
	return func(s *Service) {
		s.blockedDomains = domains
	}
}

func defaultID() string {
	return uuid.NewString()
}

// mapStoreError converts storage errors to apperr kinds
func mapStoreError(message string, err error) error {
	var appErr *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, message, err)
	case errors.Is(err, storage.ErrDuplicate), errors.Is(err, storage.ErrConflict):
		return apperr.Wrap(apperr.KindConflict, message, err)
	default:
		return apperr.Persistence(message, err)
	}
}
