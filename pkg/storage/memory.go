package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/tenancy/pkg/auth"
)

// memoryState holds one version of the store contents. Stored entities are
// never mutated in place; writes replace map entries with fresh copies.
type memoryState struct {
	users         map[string]*auth.User
	organizations map[string]*auth.Organization
	roles         map[string]*auth.Role
	invitations   map[string]*auth.Invitation
}

func newMemoryState() *memoryState {
	return &memoryState{
		users:         make(map[string]*auth.User),
		organizations: make(map[string]*auth.Organization),
		roles:         make(map[string]*auth.Role),
		invitations:   make(map[string]*auth.Invitation),
	}
}

// fork returns a copy of the maps sharing the immutable entity values
func (m *memoryState) fork() *memoryState {
	out := &memoryState{
		users:         make(map[string]*auth.User, len(m.users)),
		organizations: make(map[string]*auth.Organization, len(m.organizations)),
		roles:         make(map[string]*auth.Role, len(m.roles)),
		invitations:   make(map[string]*auth.Invitation, len(m.invitations)),
	}
	for k, v := range m.users {
		out.users[k] = v
	}
	for k, v := range m.organizations {
		out.organizations[k] = v
	}
	for k, v := range m.roles {
		out.roles[k] = v
	}
	for k, v := range m.invitations {
		out.invitations[k] = v
	}
	return out
}

// MemoryStore is an in-process Store. Transactions are serialised: RunInTx
// holds the store lock for the duration of fn and commits the staged state
// atomically when fn succeeds.
//
// Inside fn only the Tx may be used; calling the MemoryStore's own read
// methods from within fn deadlocks.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

// RunInTx implements Store.RunInTx
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{state: s.state.fork()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	s.state = tx.state
	return nil
}

// HealthCheck implements Store.HealthCheck. The memory store is always ready.
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// Close implements Store.Close
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) snapshot() *memoryTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	// state maps are replaced wholesale on commit, never mutated after
	return &memoryTx{state: s.state}
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return s.snapshot().GetUser(ctx, id)
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.snapshot().FindUserByEmail(ctx, email)
}

func (s *MemoryStore) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.snapshot().FindUserByUsername(ctx, username)
}

func (s *MemoryStore) FindUserByAuthID(ctx context.Context, provider, externalID string) (*auth.User, error) {
	return s.snapshot().FindUserByAuthID(ctx, provider, externalID)
}

func (s *MemoryStore) GetOrganization(ctx context.Context, id string) (*auth.Organization, error) {
	return s.snapshot().GetOrganization(ctx, id)
}

func (s *MemoryStore) FindAdminOrganization(ctx context.Context) (*auth.Organization, error) {
	return s.snapshot().FindAdminOrganization(ctx)
}

func (s *MemoryStore) ListOrganizationsByUser(ctx context.Context, userID string) ([]*auth.Organization, error) {
	return s.snapshot().ListOrganizationsByUser(ctx, userID)
}

func (s *MemoryStore) GetRole(ctx context.Context, id string) (*auth.Role, error) {
	return s.snapshot().GetRole(ctx, id)
}

func (s *MemoryStore) FindRole(ctx context.Context, userID, organizationID string) (*auth.Role, error) {
	return s.snapshot().FindRole(ctx, userID, organizationID)
}

func (s *MemoryStore) ListRolesByUser(ctx context.Context, userID string) ([]*auth.Role, error) {
	return s.snapshot().ListRolesByUser(ctx, userID)
}

func (s *MemoryStore) ListRolesByOrganization(ctx context.Context, organizationID string) ([]*auth.Role, error) {
	return s.snapshot().ListRolesByOrganization(ctx, organizationID)
}

func (s *MemoryStore) GetInvitation(ctx context.Context, id string) (*auth.Invitation, error) {
	return s.snapshot().GetInvitation(ctx, id)
}

func (s *MemoryStore) FindInvitationByHash(ctx context.Context, hash string, status auth.InvitationStatus) (*auth.Invitation, error) {
	return s.snapshot().FindInvitationByHash(ctx, hash, status)
}

func (s *MemoryStore) ListInvitations(ctx context.Context, filter InvitationFilter) ([]*auth.Invitation, error) {
	return s.snapshot().ListInvitations(ctx, filter)
}

// memoryTx reads and writes a private fork of the store state
type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetUser(ctx context.Context, id string) (*auth.User, error) {
	u, ok := t.state.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u.Clone(), nil
}

func (t *memoryTx) findUser(match func(u *auth.User) bool) (*auth.User, bool) {
	for _, u := range t.state.users {
		if u.DeletedAt == nil && match(u) {
			return u.Clone(), true
		}
	}
	return nil, false
}

func (t *memoryTx) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = auth.CanonicalEmail(email)
	if u, ok := t.findUser(func(u *auth.User) bool { return u.Email == email }); ok {
		return u, nil
	}
	return nil, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
}

func (t *memoryTx) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	if u, ok := t.findUser(func(u *auth.User) bool { return u.Username == username }); ok {
		return u, nil
	}
	return nil, fmt.Errorf("user with username %s: %w", username, ErrNotFound)
}

func (t *memoryTx) FindUserByAuthID(ctx context.Context, provider, externalID string) (*auth.User, error) {
	u, ok := t.findUser(func(u *auth.User) bool {
		data, ok := u.AuthData[provider]
		return ok && data.ID == externalID
	})
	if ok {
		return u, nil
	}
	return nil, fmt.Errorf("user with %s id %s: %w", provider, externalID, ErrNotFound)
}

func (t *memoryTx) GetOrganization(ctx context.Context, id string) (*auth.Organization, error) {
	o, ok := t.state.organizations[id]
	if !ok {
		return nil, fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	return o.Clone(), nil
}

func (t *memoryTx) FindAdminOrganization(ctx context.Context) (*auth.Organization, error) {
	for _, o := range t.state.organizations {
		if o.AdminOwner && o.DeletedAt == nil {
			return o.Clone(), nil
		}
	}
	return nil, fmt.Errorf("admin organization: %w", ErrNotFound)
}

func (t *memoryTx) ListOrganizationsByUser(ctx context.Context, userID string) ([]*auth.Organization, error) {
	var orgs []*auth.Organization
	for _, o := range t.state.organizations {
		if o.DeletedAt == nil && o.HasMember(userID) {
			orgs = append(orgs, o.Clone())
		}
	}
	sort.Slice(orgs, func(i, j int) bool {
		if orgs[i].CreatedAt.Equal(orgs[j].CreatedAt) {
			return orgs[i].ID < orgs[j].ID
		}
		return orgs[i].CreatedAt.Before(orgs[j].CreatedAt)
	})
	return orgs, nil
}

func (t *memoryTx) GetRole(ctx context.Context, id string) (*auth.Role, error) {
	r, ok := t.state.roles[id]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", id, ErrNotFound)
	}
	return r.Clone(), nil
}

func (t *memoryTx) FindRole(ctx context.Context, userID, organizationID string) (*auth.Role, error) {
	for _, r := range t.state.roles {
		if r.UserID == userID && r.OrganizationID == organizationID {
			return r.Clone(), nil
		}
	}
	return nil, fmt.Errorf("role for user %s in organization %s: %w", userID, organizationID, ErrNotFound)
}

func (t *memoryTx) listRoles(match func(r *auth.Role) bool) []*auth.Role {
	var roles []*auth.Role
	for _, r := range t.state.roles {
		if match(r) {
			roles = append(roles, r.Clone())
		}
	}
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].CreatedAt.Equal(roles[j].CreatedAt) {
			return roles[i].ID < roles[j].ID
		}
		return roles[i].CreatedAt.Before(roles[j].CreatedAt)
	})
	return roles
}

func (t *memoryTx) ListRolesByUser(ctx context.Context, userID string) ([]*auth.Role, error) {
	return t.listRoles(func(r *auth.Role) bool { return r.UserID == userID }), nil
}

func (t *memoryTx) ListRolesByOrganization(ctx context.Context, organizationID string) ([]*auth.Role, error) {
	return t.listRoles(func(r *auth.Role) bool { return r.OrganizationID == organizationID }), nil
}

func (t *memoryTx) GetInvitation(ctx context.Context, id string) (*auth.Invitation, error) {
	inv, ok := t.state.invitations[id]
	if !ok {
		return nil, fmt.Errorf("invitation %s: %w", id, ErrNotFound)
	}
	return inv.Clone(), nil
}

func (t *memoryTx) FindInvitationByHash(ctx context.Context, hash string, status auth.InvitationStatus) (*auth.Invitation, error) {
	for _, inv := range t.state.invitations {
		if inv.Hash == hash && (status == "" || inv.Status == status) {
			return inv.Clone(), nil
		}
	}
	return nil, fmt.Errorf("invitation by hash: %w", ErrNotFound)
}

func (t *memoryTx) ListInvitations(ctx context.Context, filter InvitationFilter) ([]*auth.Invitation, error) {
	var invs []*auth.Invitation
	for _, inv := range t.state.invitations {
		if filter.Matches(inv) {
			invs = append(invs, inv.Clone())
		}
	}
	sort.Slice(invs, func(i, j int) bool {
		if invs[i].CreatedAt.Equal(invs[j].CreatedAt) {
			return invs[i].ID < invs[j].ID
		}
		return invs[i].CreatedAt.Before(invs[j].CreatedAt)
	})
	return invs, nil
}

func (t *memoryTx) SaveUser(ctx context.Context, user *auth.User) error {
	if user.ID == "" {
		return fmt.Errorf("user id is required")
	}
	email := auth.CanonicalEmail(user.Email)
	cellPhone := ""
	if user.Contact != nil {
		cellPhone = user.Contact.CellPhone
	}
	for id, u := range t.state.users {
		if id == user.ID {
			continue
		}
		if email != "" && u.Email == email {
			return fmt.Errorf("user email %s: %w", email, ErrDuplicate)
		}
		if user.Username != "" && u.Username == user.Username {
			return fmt.Errorf("user username %s: %w", user.Username, ErrDuplicate)
		}
		if cellPhone != "" && u.Contact != nil && u.Contact.CellPhone == cellPhone {
			return fmt.Errorf("user cell phone: %w", ErrDuplicate)
		}
	}

	stored := user.Clone()
	stored.Email = email
	t.state.users[user.ID] = stored
	return nil
}

func (t *memoryTx) SaveOrganization(ctx context.Context, org *auth.Organization) error {
	if org.ID == "" {
		return fmt.Errorf("organization id is required")
	}
	if org.Name != "" {
		for id, o := range t.state.organizations {
			if id != org.ID && o.OwnerID == org.OwnerID && o.Name == org.Name {
				return fmt.Errorf("organization name %q for owner %s: %w", org.Name, org.OwnerID, ErrDuplicate)
			}
		}
	}
	t.state.organizations[org.ID] = org.Clone()
	return nil
}

func (t *memoryTx) InsertRole(ctx context.Context, role *auth.Role) error {
	if _, exists := t.state.roles[role.ID]; exists {
		return fmt.Errorf("role %s: %w", role.ID, ErrDuplicate)
	}
	for _, r := range t.state.roles {
		if r.UserID == role.UserID && r.OrganizationID == role.OrganizationID {
			return fmt.Errorf("role for user %s in organization %s: %w", role.UserID, role.OrganizationID, ErrDuplicate)
		}
	}
	t.state.roles[role.ID] = role.Clone()
	return nil
}

func (t *memoryTx) DeleteRole(ctx context.Context, id string) error {
	if _, ok := t.state.roles[id]; !ok {
		return fmt.Errorf("role %s: %w", id, ErrNotFound)
	}
	delete(t.state.roles, id)
	return nil
}

func (t *memoryTx) InsertInvitation(ctx context.Context, inv *auth.Invitation) error {
	if _, exists := t.state.invitations[inv.ID]; exists {
		return fmt.Errorf("invitation %s: %w", inv.ID, ErrDuplicate)
	}
	email := auth.CanonicalEmail(inv.Email)
	for _, existing := range t.state.invitations {
		if existing.Hash == inv.Hash {
			return fmt.Errorf("invitation hash: %w", ErrDuplicate)
		}
		if inv.Status == auth.InvitationPending && existing.Status == auth.InvitationPending &&
			existing.Email == email && existing.OrganizationID == inv.OrganizationID {
			return fmt.Errorf("pending invitation for %s: %w", email, ErrDuplicate)
		}
	}
	stored := inv.Clone()
	stored.Email = email
	t.state.invitations[inv.ID] = stored
	return nil
}

func (t *memoryTx) TransitionInvitation(ctx context.Context, id string, from, to auth.InvitationStatus, toUserID string) error {
	inv, ok := t.state.invitations[id]
	if !ok {
		return fmt.Errorf("invitation %s: %w", id, ErrNotFound)
	}
	if inv.Status != from {
		return fmt.Errorf("invitation %s is %s, not %s: %w", id, inv.Status, from, ErrConflict)
	}
	updated := inv.Clone()
	updated.Status = to
	if toUserID != "" {
		updated.ToUserID = toUserID
	}
	updated.UpdatedAt = time.Now().UTC()
	t.state.invitations[id] = updated
	return nil
}
