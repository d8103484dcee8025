package sso

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenancy/pkg/apperr"
	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/events"
	"github.com/platinummonkey/tenancy/pkg/storage"
)

// NoPassword is stored as the password of users created from a profile
const NoPassword = "none"

// SignupBootstrap sets up the organization of a user created from a profile
type SignupBootstrap interface {
	OAuthSignup(ctx context.Context, signup auth.SignupContext, user *auth.User, provider string) (*auth.Organization, error)
}

// UserProvider finds or provisions the user behind an OAuth profile
type UserProvider struct {
	store     storage.Store
	bootstrap SignupBootstrap
	publisher events.Publisher
	logger    *logrus.Logger
	now       func() time.Time
}

// NewUserProvider creates a UserProvider. A nil publisher drops events.
func NewUserProvider(store storage.Store, bootstrap SignupBootstrap, publisher events.Publisher, logger *logrus.Logger) *UserProvider {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &UserProvider{
		store:     store,
		bootstrap: bootstrap,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// LoadUser returns the user for profile, creating it on first login, and
// records the login
func (p *UserProvider) LoadUser(ctx context.Context, signup auth.SignupContext, profile *Profile) (*auth.User, error) {
	if profile == nil || profile.Provider == "" || profile.ExternalID == "" {
		return nil, apperr.Validation("profile", "provider and external id are required")
	}

	user, err := p.findUser(ctx, profile)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		user, err = p.signup(ctx, signup, profile)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, apperr.Persistence("failed to find user", err)
	}

	if err := p.login(ctx, user, profile); err != nil {
		return nil, err
	}
	return user, nil
}

func (p *UserProvider) findUser(ctx context.Context, profile *Profile) (*auth.User, error) {
	if profile.EmailVerified && profile.Email != "" {
		user, err := p.store.FindUserByEmail(ctx, profile.Email)
		if err == nil || !errors.Is(err, storage.ErrNotFound) {
			return user, err
		}
	}
	return p.store.FindUserByAuthID(ctx, profile.Provider, profile.ExternalID)
}

func (p *UserProvider) signup(ctx context.Context, signup auth.SignupContext, profile *Profile) (*auth.User, error) {
	if profile.Email == "" {
		return nil, apperr.Validation("email", fmt.Sprintf("%s did not provide an email address", profile.Provider))
	}

	user := p.newUser(profile)
	err := p.store.RunInTx(ctx, func(tx storage.Tx) error {
		return tx.SaveUser(ctx, user)
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, apperr.Wrap(apperr.KindConflict, "a user with this email or username already exists", err)
		}
		return nil, apperr.Persistence("failed to create user", err)
	}

	p.logger.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"provider": profile.Provider,
	}).Info("User created from OAuth profile")
	p.publisher.Publish(ctx, events.UserOAuthSignup{
		BaseEvent: events.NewBaseEvent(),
		User:      user.Clone(),
		Provider:  profile.Provider,
	})

	if signup.Locale == "" {
		signup.Locale = profile.Locale
	}
	if _, err := p.bootstrap.OAuthSignup(ctx, signup, user, profile.Provider); err != nil {
		return nil, fmt.Errorf("failed to bootstrap user: %w", err)
	}
	return user, nil
}

func (p *UserProvider) newUser(profile *Profile) *auth.User {
	now := p.now()
	email := auth.CanonicalEmail(profile.Email)

	contact := &auth.Contact{
		Name:      profile.GivenName(),
		LastNames: profile.LastName,
		Gender:    profile.Gender,
		Email:     email,
		Locale:    profile.Locale,
		Timezone:  profile.Timezone,
		Avatar: &auth.Avatar{
			GravatarEmail: email,
			SocialURL:     profile.AvatarURL,
		},
	}
	if profile.ProfileLink != "" {
		contact.SetServiceProfile(profile.Provider, map[string]string{"link": profile.ProfileLink})
	}

	user := &auth.User{
		ID:                uuid.NewString(),
		Username:          email,
		Email:             email,
		Password:          NoPassword,
		Enabled:           true,
		Roles:             []string{auth.RoleUser},
		Contact:           contact,
		AuthProvider:      profile.Provider,
		FirstAuthProvider: profile.Provider,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	user.SetAuthData(profile.Provider, auth.AuthData{ID: profile.ExternalID, Token: profile.Token})
	return user
}

// login records the provider credentials. Users who registered locally keep
// their email and username.
func (p *UserProvider) login(ctx context.Context, user *auth.User, profile *Profile) error {
	var updated *auth.User
	err := p.store.RunInTx(ctx, func(tx storage.Tx) error {
		current, err := tx.GetUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		current.AuthProvider = profile.Provider
		if current.FirstAuthProvider == "" {
			current.FirstAuthProvider = profile.Provider
		}
		if current.FirstAuthProvider != auth.ProviderLocal && profile.Email != "" {
			email := auth.CanonicalEmail(profile.Email)
			current.Email = email
			current.Username = email
		}
		current.SetAuthData(profile.Provider, auth.AuthData{ID: profile.ExternalID, Token: profile.Token})
		current.UpdatedAt = p.now()
		if err := tx.SaveUser(ctx, current); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		updated = current
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return apperr.Wrap(apperr.KindConflict, "another user already uses this email address", err)
		}
		return apperr.Persistence("failed to record login", err)
	}

	*user = *updated
	p.publisher.Publish(ctx, events.UserOAuthLogin{
		BaseEvent: events.NewBaseEvent(),
		User:      updated.Clone(),
		Provider:  profile.Provider,
	})
	return nil
}
