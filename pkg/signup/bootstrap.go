package signup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenancy/pkg/apperr"
	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/storage"
)

// SignupContext is the request-scoped signup state handed over by the HTTP layer
type SignupContext = auth.SignupContext

// Membership is the part of the membership engine used during signup
type Membership interface {
	SetupOrganization(ctx context.Context, user *auth.User, signup auth.SignupContext) (*auth.Organization, error)
	SwitchOrganization(ctx context.Context, user *auth.User, org *auth.Organization) error
}

// SubscriptionUpdater registers a new member for organization notifications
type SubscriptionUpdater interface {
	UpdateSubscriptions(ctx context.Context, user *auth.User, org *auth.Organization) error
}

// SubscriptionUpdaterFunc adapts a function to SubscriptionUpdater
type SubscriptionUpdaterFunc func(ctx context.Context, user *auth.User, org *auth.Organization) error

// UpdateSubscriptions calls f
func (f SubscriptionUpdaterFunc) UpdateSubscriptions(ctx context.Context, user *auth.User, org *auth.Organization) error {
	return f(ctx, user, org)
}

type nopSubscriptions struct{}

func (nopSubscriptions) UpdateSubscriptions(context.Context, *auth.User, *auth.Organization) error {
	return nil
}

// Bootstrapper runs the first-login organization setup
type Bootstrapper struct {
	membership    Membership
	users         storage.Store
	subscriptions SubscriptionUpdater
	logger        *logrus.Logger
}

// NewBootstrapper creates a Bootstrapper. subscriptions may be nil.
func NewBootstrapper(membership Membership, users storage.Store, subscriptions SubscriptionUpdater, logger *logrus.Logger) *Bootstrapper {
	if subscriptions == nil {
		subscriptions = nopSubscriptions{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bootstrapper{
		membership:    membership,
		users:         users,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegistrationConfirmed runs after a locally registered user confirmed their
// account. The locale chosen during registration is stored on the user's
// contact before the organization is set up.
func (b *Bootstrapper) RegistrationConfirmed(ctx context.Context, signup SignupContext, user *auth.User) (*auth.Organization, error) {
	if locale := strings.ToLower(strings.TrimSpace(signup.Locale)); locale != "" {
		if err := b.storeLocale(ctx, user, locale); err != nil {
			return nil, err
		}
	}
	return b.bootstrap(ctx, signup, user, auth.ProviderLocal)
}

// OAuthSignup runs after a user was created from an OAuth profile
func (b *Bootstrapper) OAuthSignup(ctx context.Context, signup SignupContext, user *auth.User, provider string) (*auth.Organization, error) {
	return b.bootstrap(ctx, signup, user, provider)
}

func (b *Bootstrapper) bootstrap(ctx context.Context, signup SignupContext, user *auth.User, provider string) (*auth.Organization, error) {
	log := b.logger.WithFields(logrus.Fields{
		"user_id":        user.ID,
		"provider":       provider,
		"has_invitation": signup.HasInvitation(),
	})

	org, err := b.membership.SetupOrganization(ctx, user, signup)
	if err != nil {
		return nil, fmt.Errorf("failed to set up organization: %w", err)
	}

	if err := b.subscriptions.UpdateSubscriptions(ctx, user, org); err != nil {
		log.WithError(err).Warn("Failed to update notification subscriptions")
	}

	// a joined organization is not active yet; a created one is, and switching
	// again re-derives the role-strings from the stored Role
	if err := b.membership.SwitchOrganization(ctx, user, org); err != nil {
		return nil, fmt.Errorf("failed to activate organization: %w", err)
	}

	log.WithField("organization_id", org.ID).Info("Signup bootstrap completed")
	return org, nil
}

func (b *Bootstrapper) storeLocale(ctx context.Context, user *auth.User, locale string) error {
	var updated *auth.User
	err := b.users.RunInTx(ctx, func(tx storage.Tx) error {
		current, err := tx.GetUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		if current.Contact == nil {
			current.Contact = &auth.Contact{Email: current.Email}
		}
		current.Contact.Locale = locale
		current.Contact.PreferredLanguage = locale
		if err := tx.SaveUser(ctx, current); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		updated = current
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.Wrap(apperr.KindNotFound, "failed to store locale", err)
		}
		return apperr.Persistence("failed to store locale", err)
	}
	*user = *updated
	return nil
}
