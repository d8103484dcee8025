package orgs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenancy/pkg/apperr"
	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/events"
	"github.com/platinummonkey/tenancy/pkg/storage"
)

// DefaultBlockedDomains are disposable mailbox providers invitations are never sent to
var DefaultBlockedDomains = []string{
	"10minutemail.com",
	"guerrillamail.com",
	"mailinator.com",
	"sharklasers.com",
	"temp-mail.org",
	"throwawaymail.com",
	"trashmail.com",
	"yopmail.com",
}

// InvitationRequest is the validated input of Create
type InvitationRequest struct {
	Email  string   `json:"email" validate:"required,email,notanonymous"`
	Roles  []string `json:"roles" validate:"min=1,dive,required"`
	Locale string   `json:"locale" validate:"omitempty,max=10"`
}

// Invitations is the invitation workflow
type Invitations struct {
	svc      *Service
	validate *validator.Validate
	blocked  map[string]struct{}
}

func newInvitations(svc *Service) *Invitations {
	inv := &Invitations{
		svc:      svc,
		validate: validator.New(),
		blocked:  make(map[string]struct{}, len(svc.blockedDomains)),
	}
	for _, d := range svc.blockedDomains {
		inv.blocked[strings.ToLower(d)] = struct{}{}
	}
	inv.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegisterValidation(inv.validate, "notanonymous", inv.notAnonymous)
	return inv
}

// mustRegisterValidation panics when a custom tag cannot be registered, since
// every struct using the tag would otherwise skip the check.
func mustRegisterValidation(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("failed to register validation %q: %v", tag, err))
	}
}

func (i *Invitations) notAnonymous(fl validator.FieldLevel) bool {
	email := auth.CanonicalEmail(fl.Field().String())
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return true
	}
	_, blocked := i.blocked[email[at+1:]]
	return !blocked
}

// validationError converts the first validator failure into a field error
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.KindValidation, "invalid invitation", err)
	}
	fe := verrs[0]
	field := fe.Field()
	if idx := strings.IndexByte(field, '['); idx > 0 {
		field = field[:idx]
	}
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "this value should not be blank"
	case "email":
		msg = "this value is not a valid email address"
	case "notanonymous":
		msg = "disposable email addresses are not allowed"
	case "min":
		msg = "at least one role is required"
	case "max":
		msg = fmt.Sprintf("this value is too long, it should have %s characters or less", fe.Param())
	default:
		msg = fmt.Sprintf("failed on %s", fe.Tag())
	}
	return apperr.Validation(field, msg)
}

// Create invites email to join org with roles. Self invitations, members and
// addresses that already hold a pending invitation are rejected with a
// Validation error on the email field.
func (i *Invitations) Create(ctx context.Context, org *auth.Organization, from *auth.User, email string, roles []string, locale string) (inv *auth.Invitation, err error) {
	if org == nil || org.ID == "" {
		return nil, apperr.Validation("organization", "organization is required")
	}
	if from == nil || from.ID == "" {
		return nil, apperr.Validation("from", "sender is required")
	}
	req := InvitationRequest{
		Email:  strings.TrimSpace(email),
		Roles:  dedupe(roles),
		Locale: strings.ToLower(strings.TrimSpace(locale)),
	}
	if err := i.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	canonical := auth.CanonicalEmail(req.Email)
	if canonical == auth.CanonicalEmail(from.Email) {
		return nil, apperr.Validation("email", "you can't invite yourself")
	}
	if req.Locale == "" {
		req.Locale = auth.DefaultLocale
	}

	ctx, span := i.svc.startSpan(ctx, "CreateInvitation", attribute.String("organization.id", org.ID))
	defer func() { endSpan(span, err) }()

	hash, err := auth.GenerateSecretHash()
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	now := i.svc.now()
	created := &auth.Invitation{
		ID:             i.svc.newID(),
		Status:         auth.InvitationPending,
		Hash:           hash,
		Email:          canonical,
		Roles:          req.Roles,
		FromUserID:     from.ID,
		OrganizationID: org.ID,
		Locale:         req.Locale,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var target *auth.Organization
	err = i.svc.store.RunInTx(ctx, func(tx storage.Tx) error {
		o, err := tx.GetOrganization(ctx, org.ID)
		if err != nil {
			return fmt.Errorf("failed to load organization: %w", err)
		}
		if member, err := tx.FindUserByEmail(ctx, canonical); err == nil && o.HasMember(member.ID) {
			return apperr.Validation("email", "this user is already a member of the organization")
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to look up invitee: %w", err)
		}

		pending, err := tx.ListInvitations(ctx, storage.InvitationFilter{
			OrganizationID: o.ID,
			Email:          canonical,
			Status:         auth.InvitationPending,
		})
		if err != nil {
			return fmt.Errorf("failed to list invitations: %w", err)
		}
		if len(pending) > 0 {
			return errPendingInvitation(nil)
		}
		if err := tx.InsertInvitation(ctx, created); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return errPendingInvitation(err)
			}
			return fmt.Errorf("failed to insert invitation: %w", err)
		}
		target = o
		return nil
	})
	if err != nil {
		return nil, mapStoreError("failed to create invitation", err)
	}

	i.svc.metrics.InvitationTransition(string(auth.InvitationPending))
	i.svc.logger.WithFields(logrus.Fields{
		"invitation_id":   created.ID,
		"organization_id": org.ID,
		"from_user_id":    from.ID,
	}).Info("Invitation created")

	i.svc.publisher.Publish(ctx, events.InvitationCreated{
		BaseEvent:    events.NewBaseEvent(),
		Invitation:   created.Clone(),
		Organization: target.Clone(),
		Hash:         created.Hash,
	})
	return created, nil
}

// errPendingInvitation reports a duplicate pending invitation. The store's
// unique index produces the same error when two creations race.
func errPendingInvitation(cause error) error {
	e := apperr.Validation("email", "an invitation has already been sent to this email address")
	e.Err = cause
	return e
}

// ResolveByHash accepts the pending invitation identified by hash on behalf
// of user. A hash that is malformed or matches no pending invitation returns
// a NotFound error wrapping ErrInvitationNotFound.
func (i *Invitations) ResolveByHash(ctx context.Context, user *auth.User, hash string) (*auth.Organization, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if err := auth.ValidateSecretHash(hash); err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "invitation not found", fmt.Errorf("%w: %v", ErrInvitationNotFound, err))
	}
	inv, err := i.svc.store.FindInvitationByHash(ctx, hash, auth.InvitationPending)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, "invitation not found", ErrInvitationNotFound)
		}
		return nil, apperr.Persistence("failed to look up invitation", err)
	}
	return i.Accept(ctx, inv, user)
}

// Accept turns a pending invitation into a membership of user with the
// invitation's roles. The status change and the membership are written in one
// transaction; when another caller already moved the invitation out of
// pending a Conflict error is returned and nothing is written.
func (i *Invitations) Accept(ctx context.Context, inv *auth.Invitation, user *auth.User) (org *auth.Organization, err error) {
	if inv == nil || inv.ID == "" {
		return nil, apperr.Validation("invitation", "invitation is required")
	}
	if user == nil || user.ID == "" {
		return nil, apperr.Validation("user", "user is required")
	}
	ctx, span := i.svc.startSpan(ctx, "AcceptInvitation",
		attribute.String("invitation.id", inv.ID),
		attribute.String("user.id", user.ID),
	)
	defer func() { endSpan(span, err) }()

	var (
		accepted *auth.Invitation
		result   *membership
	)
	err = i.svc.store.RunInTx(ctx, func(tx storage.Tx) error {
		if err := tx.TransitionInvitation(ctx, inv.ID, auth.InvitationPending, auth.InvitationAccepted, user.ID); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return apperr.Wrap(apperr.KindConflict, "invitation is no longer pending", err)
			}
			return fmt.Errorf("failed to accept invitation: %w", err)
		}
		current, err := tx.GetInvitation(ctx, inv.ID)
		if err != nil {
			return fmt.Errorf("failed to reload invitation: %w", err)
		}
		m, err := i.svc.addMemberTx(ctx, tx, current.OrganizationID, user.ID, current.Roles)
		if err != nil {
			return err
		}
		accepted, result = current, m
		return nil
	})
	if err != nil {
		return nil, mapStoreError("failed to accept invitation", err)
	}

	*inv = *accepted
	*user = *result.user
	i.svc.metrics.InvitationTransition(string(auth.InvitationAccepted))
	i.svc.metrics.MemberAdded()
	i.svc.logger.WithFields(logrus.Fields{
		"invitation_id":   inv.ID,
		"organization_id": result.org.ID,
		"user_id":         user.ID,
	}).Info("Invitation accepted")

	i.svc.publisher.Publish(ctx, events.InvitationAccepted{
		BaseEvent:    events.NewBaseEvent(),
		Invitation:   accepted.Clone(),
		User:         result.user.Clone(),
		Organization: result.org.Clone(),
	})
	return result.org, nil
}

// Reject moves a pending invitation to rejected
func (i *Invitations) Reject(ctx context.Context, inv *auth.Invitation) error {
	if inv == nil || inv.ID == "" {
		return apperr.Validation("invitation", "invitation is required")
	}
	updated, err := i.transition(ctx, inv.ID, auth.InvitationRejected)
	if err != nil {
		return err
	}
	*inv = *updated
	return nil
}

func (i *Invitations) transition(ctx context.Context, id string, to auth.InvitationStatus) (*auth.Invitation, error) {
	var updated *auth.Invitation
	err := i.svc.store.RunInTx(ctx, func(tx storage.Tx) error {
		if err := tx.TransitionInvitation(ctx, id, auth.InvitationPending, to, ""); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return apperr.Wrap(apperr.KindConflict, "invitation is no longer pending", err)
			}
			return fmt.Errorf("failed to transition invitation: %w", err)
		}
		inv, err := tx.GetInvitation(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to reload invitation: %w", err)
		}
		updated = inv
		return nil
	})
	if err != nil {
		return nil, mapStoreError(fmt.Sprintf("failed to mark invitation %s", to), err)
	}
	i.svc.metrics.InvitationTransition(string(to))
	return updated, nil
}

// ExpirePending expires every pending invitation created before cutoff and
// returns how many were expired. Invitations accepted or rejected while the
// sweep runs are skipped.
func (i *Invitations) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := i.svc.store.ListInvitations(ctx, storage.InvitationFilter{
		Status:        auth.InvitationPending,
		CreatedBefore: cutoff,
	})
	if err != nil {
		return 0, mapStoreError("failed to list stale invitations", err)
	}

	expired := 0
	for _, inv := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		if _, err := i.transition(ctx, inv.ID, auth.InvitationExpired); err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				continue
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		i.svc.logger.WithField("count", expired).Info("Expired pending invitations")
	}
	return expired, nil
}

// Get loads an invitation by id
func (i *Invitations) Get(ctx context.Context, id string) (*auth.Invitation, error) {
	inv, err := i.svc.store.GetInvitation(ctx, id)
	if err != nil {
		return nil, mapStoreError("failed to get invitation", err)
	}
	return inv, nil
}

// List returns the invitations matching filter. Sent and accepted
// invitations of a user are FromUserID and ToUserID filters.
func (i *Invitations) List(ctx context.Context, filter storage.InvitationFilter) ([]*auth.Invitation, error) {
	list, err := i.svc.store.ListInvitations(ctx, filter)
	if err != nil {
		return nil, mapStoreError("failed to list invitations", err)
	}
	return list, nil
}
