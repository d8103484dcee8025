package orgs

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/events"
	"github.com/platinummonkey/tenancy/pkg/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) named(name string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type recordingRefresher struct {
	mu      sync.Mutex
	userIDs []string
}

func (r *recordingRefresher) Invalidate(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userIDs = append(r.userIDs, userID)
}

func (r *recordingRefresher) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userIDs = nil
}

// failingStore fails every transaction while still serving reads
type failingStore struct {
	*storage.MemoryStore
}

func (failingStore) RunInTx(context.Context, func(storage.Tx) error) error {
	return errors.New("connection reset by peer")
}

type testEnv struct {
	store     *storage.MemoryStore
	publisher *recordingPublisher
	sessions  *recordingRefresher
	svc       *Service
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     storage.NewMemoryStore(),
		publisher: &recordingPublisher{},
		sessions:  &recordingRefresher{},
	}
	opts = append([]Option{WithSessionRefresher(env.sessions)}, opts...)
	env.svc = NewService(env.store, env.publisher, quietLogger(), opts...)
	return env
}

func (e *testEnv) seedUser(t *testing.T, id, email string) *auth.User {
	t.Helper()
	user := &auth.User{
		ID:       id,
		Username: email,
		Email:    email,
		Enabled:  true,
		Roles:    []string{auth.RoleUser},
		Contact:  &auth.Contact{Name: "Test", LastNames: id, Email: email},
	}
	err := e.store.RunInTx(context.Background(), func(tx storage.Tx) error {
		return tx.SaveUser(context.Background(), user)
	})
	require.NoError(t, err)
	return user.Clone()
}

func (e *testEnv) reloadUser(t *testing.T, id string) *auth.User {
	t.Helper()
	user, err := e.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return user
}

func (e *testEnv) reloadOrganization(t *testing.T, id string) *auth.Organization {
	t.Helper()
	org, err := e.store.GetOrganization(context.Background(), id)
	require.NoError(t, err)
	return org
}

// requireActiveRoleConsistent checks that the active role belongs to the active organization
func (e *testEnv) requireActiveRoleConsistent(t *testing.T, user *auth.User) {
	t.Helper()
	if user.ActiveRoleID == "" {
		return
	}
	role, err := e.store.GetRole(context.Background(), user.ActiveRoleID)
	require.NoError(t, err)
	require.Equal(t, user.ActiveOrganizationID, role.OrganizationID)
	require.Equal(t, user.ID, role.UserID)
}
