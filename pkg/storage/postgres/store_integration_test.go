//go:build integration
// +build integration

package postgres

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/storage"
)

// setupPostgresStore starts a PostgreSQL container, migrates it and returns a store
func setupPostgresStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	defer provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("tenancy_test"),
		tcpostgres.WithUsername("tenancy"),
		tcpostgres.WithPassword("tenancy_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, DefaultConnectionConfig(connStr))
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	require.NoError(t, Migrate(ctx, db, logger))

	t.Cleanup(func() {
		db.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	return NewStore(db)
}

func TestStoreIntegration_MembershipRoundTrip(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	user := &auth.User{
		ID: "u1", Username: "ada", Email: "Ada@Example.com", Enabled: true,
		Roles: []string{auth.RoleUser}, Contact: &auth.Contact{Name: "Ada", CellPhone: "+100"},
		CreatedAt: now, UpdatedAt: now,
	}
	user.SetAuthData("github", auth.AuthData{ID: "42"})

	err := store.RunInTx(ctx, func(tx storage.Tx) error {
		if err := tx.SaveUser(ctx, user); err != nil {
			return err
		}
		org := &auth.Organization{
			ID: "o1", Type: auth.OrganizationFreelance, Enabled: true, OwnerID: "u1",
			MemberIDs: []string{"u1"}, Contact: user.Contact.Clone(), CreatedAt: now, UpdatedAt: now,
		}
		if err := tx.SaveOrganization(ctx, org); err != nil {
			return err
		}
		return tx.InsertRole(ctx, &auth.Role{
			ID: "r1", UserID: "u1", OrganizationID: "o1",
			Roles: []string{auth.RoleOrganizationOwner}, CreatedAt: now, UpdatedAt: now,
		})
	})
	require.NoError(t, err)

	got, err := store.FindUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	byAuth, err := store.FindUserByAuthID(ctx, "github", "42")
	require.NoError(t, err)
	assert.Equal(t, "u1", byAuth.ID)

	orgs, err := store.ListOrganizationsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "Ada", orgs[0].Contact.Name)

	err = store.RunInTx(ctx, func(tx storage.Tx) error {
		return tx.InsertRole(ctx, &auth.Role{ID: "r2", UserID: "u1", OrganizationID: "o1", CreatedAt: now, UpdatedAt: now})
	})
	assert.True(t, errors.Is(err, storage.ErrDuplicate))
}

func TestStoreIntegration_ConcurrentPendingInvitation(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.RunInTx(ctx, func(tx storage.Tx) error {
		return tx.SaveOrganization(ctx, &auth.Organization{
			ID: "o1", Type: auth.OrganizationCompany, OwnerID: "u1", MemberIDs: []string{"u1"},
			CreatedAt: now, UpdatedAt: now,
		})
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hash, _ := auth.GenerateSecretHash()
			errs[i] = store.RunInTx(ctx, func(tx storage.Tx) error {
				return tx.InsertInvitation(ctx, &auth.Invitation{
					ID: hash[:16], Status: auth.InvitationPending, Hash: hash, Email: "bob@example.com",
					Roles: []string{"ROLE_ORGANIZATION_MEMBER"}, FromUserID: "u1", OrganizationID: "o1",
					Locale: auth.DefaultLocale, CreatedAt: now, UpdatedAt: now,
				})
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, storage.ErrDuplicate), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)
}
