package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/observability"
	"github.com/platinummonkey/tenancy/pkg/storage"
)

// GroupRoleSource supplies roles a user inherits from group membership
type GroupRoleSource interface {
	GroupRoles(ctx context.Context, user *auth.User) ([]string, error)
}

// CacheConfig configures the effective role cache
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// DefaultCacheConfig returns the default cache settings
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Size: 10000,
		TTL:  5 * time.Minute,
	}
}

// Authorizer answers role questions for users, caching effective roles per user
type Authorizer struct {
	store   storage.RoleReader
	groups  GroupRoleSource
	cache   *lru.LRU[string, []string]
	metrics *observability.Metrics
}

// NewAuthorizer creates an authorizer. groups and metrics may be nil.
func NewAuthorizer(store storage.RoleReader, groups GroupRoleSource, config CacheConfig, metrics *observability.Metrics) *Authorizer {
	if config.Size <= 0 {
		config.Size = DefaultCacheConfig().Size
	}
	return &Authorizer{
		store:   store,
		groups:  groups,
		cache:   lru.NewLRU[string, []string](config.Size, nil, config.TTL),
		metrics: metrics,
	}
}

// Roles returns the user's effective roles
func (a *Authorizer) Roles(ctx context.Context, user *auth.User) ([]string, error) {
	if cached, ok := a.cache.Get(user.ID); ok {
		a.metrics.RoleCacheLookup(true)
		return append([]string(nil), cached...), nil
	}
	a.metrics.RoleCacheLookup(false)

	var activeRole *auth.Role
	if user.ActiveRoleID != "" {
		role, err := a.store.GetRole(ctx, user.ActiveRoleID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// membership removed since the user was loaded
		case err != nil:
			return nil, fmt.Errorf("failed to load active role: %w", err)
		default:
			activeRole = role
		}
	}
	if err := CheckActiveRole(user, activeRole); err != nil {
		return nil, err
	}

	var groupRoles []string
	if a.groups != nil {
		var err error
		groupRoles, err = a.groups.GroupRoles(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("failed to load group roles: %w", err)
		}
	}

	roles := EffectiveRoles(user, activeRole, groupRoles)
	a.cache.Add(user.ID, roles)
	return append([]string(nil), roles...), nil
}

// IsGranted reports whether role is among the user's effective roles
func (a *Authorizer) IsGranted(ctx context.Context, user *auth.User, role string) (bool, error) {
	roles, err := a.Roles(ctx, user)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops the cached roles of a user
func (a *Authorizer) Invalidate(userID string) {
	a.cache.Remove(userID)
}
