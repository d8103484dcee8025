package orgs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenancy/pkg/apperr"
	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/events"
	"github.com/platinummonkey/tenancy/pkg/storage"
)

func setupInvitations(t *testing.T, opts ...Option) (*testEnv, *auth.Organization, *auth.User) {
	t.Helper()
	env := newTestEnv(t, opts...)
	owner := env.seedUser(t, "owner", "owner@example.com")
	org, err := env.svc.CreateOrganization(context.Background(), owner)
	require.NoError(t, err)
	return env, org, owner
}

func TestInvitationCreate(t *testing.T) {
	env, org, owner := setupInvitations(t)

	inv, err := env.svc.Invitations().Create(context.Background(), org, owner, " Jane@Example.com ", []string{"ROLE_X", "ROLE_X"}, "ES")
	require.NoError(t, err)

	assert.Equal(t, auth.InvitationPending, inv.Status)
	assert.Equal(t, "jane@example.com", inv.Email)
	assert.Equal(t, []string{"ROLE_X"}, inv.Roles)
	assert.Equal(t, "es", inv.Locale)
	assert.Equal(t, owner.ID, inv.FromUserID)
	assert.Equal(t, org.ID, inv.OrganizationID)
	assert.Empty(t, inv.ToUserID)
	assert.NoError(t, auth.ValidateSecretHash(inv.Hash))

	created := env.publisher.named(events.InvitationCreatedEvent)
	require.Len(t, created, 1)
	assert.Equal(t, inv.Hash, created[0].(events.InvitationCreated).Hash)

	sent, err := env.svc.Invitations().List(context.Background(), storage.InvitationFilter{FromUserID: owner.ID})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, inv.ID, sent[0].ID)
}

func TestInvitationCreate_DefaultLocale(t *testing.T) {
	env, org, owner := setupInvitations(t)
	inv, err := env.svc.Invitations().Create(context.Background(), org, owner, "jane@example.com", []string{"ROLE_X"}, "")
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultLocale, inv.Locale)
}

func TestInvitationCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		email  string
		roles  []string
		locale string
		field  string
	}{
		{name: "self invite", email: "owner@example.com", roles: []string{"ROLE_X"}, field: "email"},
		{name: "self invite ignores case", email: "OWNER@Example.COM", roles: []string{"ROLE_X"}, field: "email"},
		{name: "blank email", email: "", roles: []string{"ROLE_X"}, field: "email"},
		{name: "malformed email", email: "not-an-email", roles: []string{"ROLE_X"}, field: "email"},
		{name: "disposable domain", email: "someone@mailinator.com", roles: []string{"ROLE_X"}, field: "email"},
		{name: "no roles", email: "jane@example.com", roles: nil, field: "roles"},
		{name: "blank roles", email: "jane@example.com", roles: []string{""}, field: "roles"},
		{name: "long locale", email: "jane@example.com", roles: []string{"ROLE_X"}, locale: "en_us_posix_x", field: "locale"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, org, owner := setupInvitations(t)
			inv, err := env.svc.Invitations().Create(context.Background(), org, owner, tt.email, tt.roles, tt.locale)
			require.Error(t, err)
			assert.Nil(t, inv)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
			assert.Equal(t, tt.field, apperr.FieldOf(err))
			assert.Empty(t, env.publisher.named(events.InvitationCreatedEvent))
		})
	}
}

func TestInvitationCreate_SelfInviteMessage(t *testing.T) {
	env, org, owner := setupInvitations(t)
	_, err := env.svc.Invitations().Create(context.Background(), org, owner, owner.Email, []string{"ROLE_X"}, "en")

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "you can't invite yourself", appErr.Message)
}

func TestInvitationCreate_BlockedDomainsOption(t *testing.T) {
	env, org, owner := setupInvitations(t, WithBlockedDomains("Example.org"))
	_, err := env.svc.Invitations().Create(context.Background(), org, owner, "jane@example.org", []string{"ROLE_X"}, "en")
	assert.Equal(t, "email", apperr.FieldOf(err))

	_, err = env.svc.Invitations().Create(context.Background(), org, owner, "jane@mailinator.com", []string{"ROLE_X"}, "en")
	assert.NoError(t, err)
}

func TestMustRegisterValidation(t *testing.T) {
	v := validator.New()
	accept := func(validator.FieldLevel) bool { return true }

	assert.NotPanics(t, func() { mustRegisterValidation(v, "anything", accept) })
	assert.Panics(t, func() { mustRegisterValidation(v, "", accept) })
	assert.Panics(t, func() { mustRegisterValidation(v, "nilfunc", nil) })
}

func TestInvitationCreate_DuplicatePending(t *testing.T) {
	env, org, owner := setupInvitations(t)
	ctx := context.Background()

	_, err := env.svc.Invitations().Create(ctx, org, owner, "jane@example.com", []string{"ROLE_X"}, "en")
	require.NoError(t, err)

	_, err = env.svc.Invitations().Create(ctx, org, owner, "JANE@example.com", []string{"ROLE_Y"}, "en")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, "email", apperr.FieldOf(err))
}

func TestInvitationCreate_AfterRejectionAllowsNewInvitation(t *testing.T) {
	env, org, owner := setupInvitations(t)
	ctx := context.Background()

	first, err := env.svc.Invitations().Create(ctx, org, owner, "jane@example.com", []string{"ROLE_X"}, "en")
	require.NoError(t, err)
	require.NoError(t, env.svc.Invitations().Reject(ctx, first))
	assert.Equal(t, auth.InvitationRejected, first.Status)

	_, err = env.svc.Invitations().Create(ctx, org, owner, "jane@example.com", []string{"ROLE_X"}, "en")
	assert.NoError(t, err)
}

func TestInvitationCreate_ExistingMember(t *testing.T) {
	env, org, owner := setupInvitations(t)
	ctx := context.Background()
	member := env.seedUser(t, "member", "member@example.com")
	require.NoError(t, env.svc.AddMember(ctx, org, member, []string{"ROLE_X"}))

	_, err := env.svc.Invitations().Create(ctx, org, owner, member.Email, []string{"ROLE_X"}, "en")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, "email", apperr.FieldOf(err))
}

func TestInvitationCreate_Concurrent(t *testing.T) {
	env, org, owner := setupInvitations(t)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = env.svc.Invitations().Create(ctx, org, owner, "x@y.com", []string{"ROLE_X"}, "en")
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		assert.Equal(t, "email", apperr.FieldOf(err))
	}
	assert.Equal(t, 1, succeeded)

	pending, err := env.svc.Invitations().List(ctx, storage.InvitationFilter{OrganizationID: org.ID, Status: auth.InvitationPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestInvitationRoundTrip(t *testing.T) {
	env, org, owner := setupInvitations(t)
	ctx := context.Background()
	invitee := env.seedUser(t, "invitee", "a@b.com")

	inv, err := env.svc.Invitations().Create(ctx, org, owner, "a@b.com", []string{"ROLE_X"}, "en")
	require.NoError(t, err)

	joined, err := env.svc.Invitations().ResolveByHash(ctx, invitee, inv.Hash)
	require.NoError(t, err)
	assert.Equal(t, org.ID, joined.ID)
	assert.True(t, joined.HasMember(invitee.ID))
	assert.True(t, invitee.IsMemberOf(org.ID))

	stored, err := env.svc.Invitations().Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.InvitationAccepted, stored.Status)
	assert.Equal(t, invitee.ID, stored.ToUserID)

	role, err := env.store.FindRole(ctx, invitee.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_X"}, role.Roles)

	accepted, err := env.svc.Invitations().List(ctx, storage.InvitationFilter{ToUserID: invitee.ID})
	require.NoError(t, err)
	assert.Len(t, accepted, 1)

	require.Len(t, env.publisher.named(events.InvitationAcceptedEvent), 1)
}

func TestInvitationAccept_OnlyOnce(t *testing.T) {
	env, org, owner := setupInvitations(t)
	ctx := context.Background()
	invitee := env.seedUser(t, "invitee", "a@b.com")
	other := env.seedUser(t, "other", "other@b.com")

	inv, err := env.svc.Invitations().Create(ctx, org, owner, "a@b.com", []string{"ROLE_X"}, "en")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, u := range []*auth.User{invitee, other} {
		wg.Add(1)
		go func(i int, u *auth.User) {
			defer wg.Done()
			_, results[i] = env.svc.Invitations().Accept(ctx, inv.Clone(), u)
		}(i, u)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindConflict))
	}
	assert.Equal(t, 1, succeeded)

	members, err := env.svc.Members(ctx, org)
	require.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Len(t, env.publisher.named(events.InvitationAcceptedEvent), 1)

	_, err = env.svc.Invitations().ResolveByHash(ctx, invitee, inv.Hash)
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestInvitationAccept_ExistingMemberRollsBack(t *testing.T) {
	env, org, owner := setupInvitations(t)
	ctx := context.Background()
	member := env.seedUser(t, "member", "member@example.com")

	inv, err := env.svc.Invitations().Create(ctx, org, owner, member.Email, []string{"ROLE_X"}, "en")
	require.NoError(t, err)
	require.NoError(t, env.svc.AddMember(ctx, org, member, []string{"ROLE_Y"}))

	_, err = env.svc.Invitations().Accept(ctx, inv, member)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	stored, err := env.svc.Invitations().Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.InvitationPending, stored.Status)
}

func TestResolveByHash_NotFound(t *testing.T) {
	env, _, owner := setupInvitations(t)

	for _, hash := range []string{"", "short", "0123456789abcdef0123456789abcdef01234567"} {
		_, err := env.svc.Invitations().ResolveByHash(context.Background(), owner, hash)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvitationNotFound)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	}
}

func TestInvitationReject_TerminalIsFinal(t *testing.T) {
	env, org, owner := setupInvitations(t)
	ctx := context.Background()
	invitee := env.seedUser(t, "invitee", "a@b.com")

	inv, err := env.svc.Invitations().Create(ctx, org, owner, "a@b.com", []string{"ROLE_X"}, "en")
	require.NoError(t, err)
	require.NoError(t, env.svc.Invitations().Reject(ctx, inv))

	err = env.svc.Invitations().Reject(ctx, inv)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = env.svc.Invitations().Accept(ctx, inv, invitee)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.False(t, env.reloadUser(t, invitee.ID).IsMemberOf(org.ID))
}

func TestExpirePending(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	env, org, owner := setupInvitations(t, WithClock(clock))
	ctx := context.Background()

	stale, err := env.svc.Invitations().Create(ctx, org, owner, "old@example.com", []string{"ROLE_X"}, "en")
	require.NoError(t, err)
	now = now.Add(48 * time.Hour)
	fresh, err := env.svc.Invitations().Create(ctx, org, owner, "new@example.com", []string{"ROLE_X"}, "en")
	require.NoError(t, err)

	n, err := env.svc.Invitations().ExpirePending(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.svc.Invitations().Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.InvitationExpired, got.Status)

	got, err = env.svc.Invitations().Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.InvitationPending, got.Status)

	n, err = env.svc.Invitations().ExpirePending(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
