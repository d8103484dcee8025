package orgs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/tenancy/pkg/apperr"
	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/events"
	"github.com/platinummonkey/tenancy/pkg/observability"
	"github.com/platinummonkey/tenancy/pkg/storage"
)

// Service is the membership engine
type Service struct {
	store          storage.Store
	publisher      events.Publisher
	factory        OrganizationFactory
	sessions       SessionRefresher
	logger         *logrus.Logger
	metrics        *observability.Metrics
	blockedDomains []string
	invitations    *Invitations
	roleLookups    singleflight.Group
	now            func() time.Time
	newID          func() string
}

// NewService creates a membership engine. A nil publisher drops events and a
// nil logger falls back to the logrus standard logger.
func NewService(store storage.Store, publisher events.Publisher, logger *logrus.Logger, opts ...Option) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{
		store:          store,
		publisher:      publisher,
		factory:        DefaultFactory,
		sessions:       nopRefresher{},
		logger:         logger,
		blockedDomains: DefaultBlockedDomains,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          defaultID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.invitations = newInvitations(s)
	return s
}

// Invitations returns the invitation workflow bound to this engine
func (s *Service) Invitations() *Invitations {
	return s.invitations
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, "orgs."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateOrganization creates an organization owned by user. The user becomes
// its first member with ROLE_ORGANIZATION_OWNER and switches to it. On success
// *user is updated to the committed state.
func (s *Service) CreateOrganization(ctx context.Context, user *auth.User) (org *auth.Organization, err error) {
	if user == nil || user.ID == "" {
		return nil, apperr.Validation("user", "user is required")
	}
	ctx, span := s.startSpan(ctx, "CreateOrganization", attribute.String("user.id", user.ID))
	defer func() { endSpan(span, err) }()

	var updated *auth.User
	err = s.store.RunInTx(ctx, func(tx storage.Tx) error {
		owner, err := tx.GetUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		now := s.now()
		if owner.Contact == nil {
			owner.Contact = &auth.Contact{Email: owner.Email}
		}

		created := s.factory.NewOrganization(owner)
		if created == nil {
			created = DefaultFactory.NewOrganization(owner)
		}
		created.ID = s.newID()
		created.OwnerID = owner.ID
		created.MemberIDs = []string{owner.ID}
		created.Contact = owner.Contact.Clone()
		created.CreatedAt = now
		created.UpdatedAt = now

		role := &auth.Role{
			ID:             s.newID(),
			UserID:         owner.ID,
			OrganizationID: created.ID,
			Roles:          []string{auth.RoleOrganizationOwner},
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		owner.OrganizationIDs = appendUnique(owner.OrganizationIDs, created.ID)
		applyActiveRole(owner, role)
		owner.UpdatedAt = now

		if err := tx.SaveOrganization(ctx, created); err != nil {
			return fmt.Errorf("failed to save organization: %w", err)
		}
		if err := tx.InsertRole(ctx, role); err != nil {
			return fmt.Errorf("failed to insert role: %w", err)
		}
		if err := tx.SaveUser(ctx, owner); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		org, updated = created, owner
		return nil
	})
	if err != nil {
		return nil, mapStoreError("failed to create organization", err)
	}

	*user = *updated
	s.sessions.Invalidate(user.ID)
	s.metrics.OrganizationCreated()
	s.logger.WithFields(logrus.Fields{
		"organization_id": org.ID,
		"user_id":         user.ID,
	}).Info("Organization created")

	s.publisher.Publish(ctx, events.OrganizationCreated{
		BaseEvent:    events.NewBaseEvent(),
		User:         updated.Clone(),
		Organization: org.Clone(),
	})
	return org, nil
}

// AddMember binds user to org with roles. An organization without an owner
// takes the new member as owner. The active organization of the user is left
// untouched. Adding an existing member fails with a Conflict error.
func (s *Service) AddMember(ctx context.Context, org *auth.Organization, user *auth.User, roles []string) (err error) {
	if org == nil || org.ID == "" {
		return apperr.Validation("organization", "organization is required")
	}
	if user == nil || user.ID == "" {
		return apperr.Validation("user", "user is required")
	}
	roles = dedupe(roles)
	if len(roles) == 0 {
		return apperr.Validation("roles", "at least one role is required")
	}
	ctx, span := s.startSpan(ctx, "AddMember",
		attribute.String("organization.id", org.ID),
		attribute.String("user.id", user.ID),
	)
	defer func() { endSpan(span, err) }()

	var result *membership
	err = s.store.RunInTx(ctx, func(tx storage.Tx) error {
		m, err := s.addMemberTx(ctx, tx, org.ID, user.ID, roles)
		if err != nil {
			return err
		}
		result = m
		return nil
	})
	if err != nil {
		return mapStoreError("failed to add member", err)
	}

	*org = *result.org
	*user = *result.user
	s.metrics.MemberAdded()
	s.logger.WithFields(logrus.Fields{
		"organization_id": org.ID,
		"user_id":         user.ID,
		"roles":           roles,
	}).Info("Member added")
	return nil
}

type membership struct {
	org  *auth.Organization
	user *auth.User
	role *auth.Role
}

// addMemberTx performs AddMember inside an existing transaction
func (s *Service) addMemberTx(ctx context.Context, tx storage.Tx, orgID, userID string, roles []string) (*membership, error) {
	org, err := tx.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	_, err = tx.FindRole(ctx, user.ID, org.ID)
	switch {
	case err == nil:
		return nil, apperr.Conflict("user is already a member of the organization")
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to look up role: %w", err)
	}

	now := s.now()
	if org.OwnerID == "" {
		org.OwnerID = user.ID
	}
	org.MemberIDs = appendUnique(org.MemberIDs, user.ID)
	org.UpdatedAt = now
	user.OrganizationIDs = appendUnique(user.OrganizationIDs, org.ID)
	user.UpdatedAt = now

	role := &auth.Role{
		ID:             s.newID(),
		UserID:         user.ID,
		OrganizationID: org.ID,
		Roles:          append([]string(nil), roles...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := tx.SaveOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to save organization: %w", err)
	}
	if err := tx.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	if err := tx.InsertRole(ctx, role); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, apperr.Wrap(apperr.KindConflict, "user is already a member of the organization", err)
		}
		return nil, fmt.Errorf("failed to insert role: %w", err)
	}
	return &membership{org: org, user: user, role: role}, nil
}

// SwitchOrganization makes org the user's active organization. The user must
// hold a Role in org; otherwise a NotFound error is returned and the user is
// not modified. The Role is read again inside the transaction, so a membership
// removed after the pre-check also fails the switch. Both active references
// are written in one save.
func (s *Service) SwitchOrganization(ctx context.Context, user *auth.User, org *auth.Organization) (err error) {
	if user == nil || user.ID == "" {
		return apperr.Validation("user", "user is required")
	}
	if org == nil || org.ID == "" {
		return apperr.Validation("organization", "organization is required")
	}
	ctx, span := s.startSpan(ctx, "SwitchOrganization",
		attribute.String("organization.id", org.ID),
		attribute.String("user.id", user.ID),
	)
	defer func() {
		s.metrics.OrganizationSwitched(err)
		endSpan(span, err)
	}()

	if _, err := s.lookupRole(ctx, user.ID, org.ID); err != nil {
		return err
	}

	var (
		updated *auth.User
		role    *auth.Role
	)
	err = s.store.RunInTx(ctx, func(tx storage.Tx) error {
		current, err := tx.GetUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		role, err = tx.FindRole(ctx, user.ID, org.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperr.Wrap(apperr.KindNotFound, "user has no role in the organization", err)
			}
			return fmt.Errorf("failed to look up role: %w", err)
		}
		applyActiveRole(current, role)
		current.UpdatedAt = s.now()
		if err := tx.SaveUser(ctx, current); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		updated = current
		return nil
	})
	if err != nil {
		return mapStoreError("failed to switch organization", err)
	}

	*user = *updated
	s.sessions.Invalidate(user.ID)
	s.logger.WithFields(logrus.Fields{
		"organization_id": org.ID,
		"user_id":         user.ID,
		"role_id":         role.ID,
	}).Debug("Active organization switched")
	return nil
}

// lookupRole finds the role binding a user to an organization. Concurrent
// lookups of the same pair share one store read, which is detached from any
// single caller's cancellation; each caller still returns when its own
// context is done.
func (s *Service) lookupRole(ctx context.Context, userID, orgID string) (*auth.Role, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.roleLookups.DoChan(userID+"/"+orgID, func() (interface{}, error) {
		return s.store.FindRole(shared, userID, orgID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, apperr.Persistence("failed to look up role", ctx.Err())
	case res = <-ch:
	}
	v, err := res.Val, res.Err
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, "user has no role in the organization", err)
		}
		return nil, apperr.Persistence("failed to look up role", err)
	}
	return v.(*auth.Role).Clone(), nil
}

// SetupOrganization gives a freshly signed up user an organization. A user
// arriving with an invitation hash joins the inviting organization; when the
// hash matches no pending invitation, or there is no hash, a new organization
// is created.
func (s *Service) SetupOrganization(ctx context.Context, user *auth.User, signup auth.SignupContext) (*auth.Organization, error) {
	if signup.HasInvitation() {
		org, err := s.invitations.ResolveByHash(ctx, user, signup.InvitationHash)
		switch {
		case err == nil:
			return org, nil
		case errors.Is(err, ErrInvitationNotFound):
			s.logger.WithField("user_id", user.ID).Info("Invitation hash did not match a pending invitation, creating organization")
		default:
			return nil, err
		}
	}
	return s.CreateOrganization(ctx, user)
}

// RemoveMember ends a membership. The owner cannot be removed. If org was the
// user's active organization the active references are cleared in the same
// transaction.
func (s *Service) RemoveMember(ctx context.Context, org *auth.Organization, user *auth.User) (err error) {
	if org == nil || org.ID == "" {
		return apperr.Validation("organization", "organization is required")
	}
	if user == nil || user.ID == "" {
		return apperr.Validation("user", "user is required")
	}
	ctx, span := s.startSpan(ctx, "RemoveMember",
		attribute.String("organization.id", org.ID),
		attribute.String("user.id", user.ID),
	)
	defer func() { endSpan(span, err) }()

	var result *membership
	err = s.store.RunInTx(ctx, func(tx storage.Tx) error {
		o, err := tx.GetOrganization(ctx, org.ID)
		if err != nil {
			return fmt.Errorf("failed to load organization: %w", err)
		}
		u, err := tx.GetUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		if o.OwnerID == u.ID {
			return apperr.Validation("user", "the organization owner cannot be removed")
		}
		role, err := tx.FindRole(ctx, u.ID, o.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperr.Wrap(apperr.KindNotFound, "user is not a member of the organization", err)
			}
			return fmt.Errorf("failed to look up role: %w", err)
		}

		now := s.now()
		if err := tx.DeleteRole(ctx, role.ID); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		o.MemberIDs = removeString(o.MemberIDs, u.ID)
		o.UpdatedAt = now
		u.OrganizationIDs = removeString(u.OrganizationIDs, o.ID)
		if u.ActiveOrganizationID == o.ID {
			clearActiveRole(u)
		}
		u.UpdatedAt = now

		if err := tx.SaveOrganization(ctx, o); err != nil {
			return fmt.Errorf("failed to save organization: %w", err)
		}
		if err := tx.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		result = &membership{org: o, user: u, role: role}
		return nil
	})
	if err != nil {
		return mapStoreError("failed to remove member", err)
	}

	*org = *result.org
	*user = *result.user
	s.sessions.Invalidate(user.ID)
	s.metrics.MemberRemoved()
	s.logger.WithFields(logrus.Fields{
		"organization_id": org.ID,
		"user_id":         user.ID,
	}).Info("Member removed")
	return nil
}

// User loads a user by id
func (s *Service) User(ctx context.Context, id string) (*auth.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, mapStoreError("failed to get user", err)
	}
	return user, nil
}

// Organization loads an organization by id
func (s *Service) Organization(ctx context.Context, id string) (*auth.Organization, error) {
	org, err := s.store.GetOrganization(ctx, id)
	if err != nil {
		return nil, mapStoreError("failed to get organization", err)
	}
	return org, nil
}

// ListOrganizations returns every organization the user belongs to
func (s *Service) ListOrganizations(ctx context.Context, user *auth.User) ([]*auth.Organization, error) {
	list, err := s.store.ListOrganizationsByUser(ctx, user.ID)
	if err != nil {
		return nil, mapStoreError("failed to list organizations", err)
	}
	return list, nil
}

// OrganizationRoles returns the user's role in every organization
func (s *Service) OrganizationRoles(ctx context.Context, user *auth.User) ([]*auth.Role, error) {
	roles, err := s.store.ListRolesByUser(ctx, user.ID)
	if err != nil {
		return nil, mapStoreError("failed to list roles", err)
	}
	return roles, nil
}

// OrganizationRole returns the user's role in org
func (s *Service) OrganizationRole(ctx context.Context, user *auth.User, org *auth.Organization) (*auth.Role, error) {
	role, err := s.store.FindRole(ctx, user.ID, org.ID)
	if err != nil {
		return nil, mapStoreError("failed to get role", err)
	}
	return role, nil
}

// Members returns the roles of every member of org
func (s *Service) Members(ctx context.Context, org *auth.Organization) ([]*auth.Role, error) {
	roles, err := s.store.ListRolesByOrganization(ctx, org.ID)
	if err != nil {
		return nil, mapStoreError("failed to list members", err)
	}
	return roles, nil
}

// AdminOrganization returns the system administration organization
func (s *Service) AdminOrganization(ctx context.Context) (*auth.Organization, error) {
	org, err := s.store.FindAdminOrganization(ctx)
	if err != nil {
		return nil, mapStoreError("failed to get admin organization", err)
	}
	return org, nil
}
