package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/tenancy/pkg/auth"
	"github.com/platinummonkey/tenancy/pkg/storage"
)

const (
	userColumns = `id, username, email, password, enabled, roles, active_organization_id, active_role_id,
		organization_ids, contact, auth_provider, first_auth_provider, auth_data, attributes,
		created_at, updated_at, deleted_at`
	organizationColumns = `id, name, type, enabled, locked, admin_owner, owner_id, contact, member_ids,
		created_at, updated_at, deleted_at`
	roleColumns       = `id, user_id, organization_id, roles, created_at, updated_at`
	invitationColumns = `id, status, hash, email, roles, from_user_id, to_user_id, organization_id, locale,
		created_at, updated_at`
)

// queries implements storage.Tx over a *sql.DB or *sql.Tx. Inside a
// transaction users and organizations are read with FOR UPDATE so that
// read-modify-write cycles on them are serialised.
type queries struct {
	q         queryer
	forUpdate bool
}

func (q *queries) lockClause() string {
	if q.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func marshalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}
	return data, nil
}

func unmarshalJSON(data []byte, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func scanUser(row scanner) (*auth.User, error) {
	var (
		u                                            auth.User
		roles, orgIDs, contact, authData, attributes []byte
		activeOrg, activeRole                        sql.NullString
		deletedAt                                    sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Enabled, &roles, &activeOrg, &activeRole,
		&orgIDs, &contact, &u.AuthProvider, &u.FirstAuthProvider, &authData, &attributes,
		&u.CreatedAt, &u.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, mapError(err)
	}
	u.ActiveOrganizationID = activeOrg.String
	u.ActiveRoleID = activeRole.String
	u.DeletedAt = timePtr(deletedAt)
	if err := unmarshalJSON(roles, &u.Roles); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(orgIDs, &u.OrganizationIDs); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(contact, &u.Contact); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(authData, &u.AuthData); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(attributes, &u.Attributes); err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) queryUser(ctx context.Context, where string, args ...interface{}) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	u, err := scanUser(q.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (q *queries) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return q.queryUser(ctx, `id = $1`+q.lockClause(), id)
}

func (q *queries) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return q.queryUser(ctx, `email = $1 AND deleted_at IS NULL`, auth.CanonicalEmail(email))
}

func (q *queries) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	return q.queryUser(ctx, `username = $1 AND deleted_at IS NULL`, username)
}

func (q *queries) FindUserByAuthID(ctx context.Context, provider, externalID string) (*auth.User, error) {
	return q.queryUser(ctx, `auth_data -> $1 ->> 'id' = $2 AND deleted_at IS NULL`, provider, externalID)
}

func (q *queries) SaveUser(ctx context.Context, user *auth.User) error {
	roles, err := marshalJSON(nonNilStrings(user.Roles))
	if err != nil {
		return err
	}
	orgIDs, err := marshalJSON(nonNilStrings(user.OrganizationIDs))
	if err != nil {
		return err
	}
	var contact []byte
	cellPhone := ""
	if user.Contact != nil {
		if contact, err = marshalJSON(user.Contact); err != nil {
			return err
		}
		cellPhone = user.Contact.CellPhone
	}
	authData := user.AuthData
	if authData == nil {
		authData = map[string]auth.AuthData{}
	}
	authDataJSON, err := marshalJSON(authData)
	if err != nil {
		return err
	}
	attributes := user.Attributes
	if attributes == nil {
		attributes = map[string]any{}
	}
	attributesJSON, err := marshalJSON(attributes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (id, username, email, password, enabled, roles, active_organization_id, active_role_id,
			organization_ids, contact, cell_phone, auth_provider, first_auth_provider, auth_data, attributes,
			created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			password = EXCLUDED.password,
			enabled = EXCLUDED.enabled,
			roles = EXCLUDED.roles,
			active_organization_id = EXCLUDED.active_organization_id,
			active_role_id = EXCLUDED.active_role_id,
			organization_ids = EXCLUDED.organization_ids,
			contact = EXCLUDED.contact,
			cell_phone = EXCLUDED.cell_phone,
			auth_provider = EXCLUDED.auth_provider,
			first_auth_provider = EXCLUDED.first_auth_provider,
			auth_data = EXCLUDED.auth_data,
			attributes = EXCLUDED.attributes,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`
	_, err = q.q.ExecContext(ctx, query,
		user.ID, user.Username, auth.CanonicalEmail(user.Email), user.Password, user.Enabled, roles,
		nullString(user.ActiveOrganizationID), nullString(user.ActiveRoleID), orgIDs, contact, cellPhone,
		user.AuthProvider, user.FirstAuthProvider, authDataJSON, attributesJSON,
		user.CreatedAt, user.UpdatedAt, nullTime(user.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", mapError(err))
	}
	return nil
}

func scanOrganization(row scanner) (*auth.Organization, error) {
	var (
		o                  auth.Organization
		orgType            string
		contact, memberIDs []byte
		deletedAt          sql.NullTime
	)
	err := row.Scan(&o.ID, &o.Name, &orgType, &o.Enabled, &o.Locked, &o.AdminOwner, &o.OwnerID, &contact,
		&memberIDs, &o.CreatedAt, &o.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, mapError(err)
	}
	o.Type = auth.OrganizationType(orgType)
	o.DeletedAt = timePtr(deletedAt)
	if err := unmarshalJSON(contact, &o.Contact); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(memberIDs, &o.MemberIDs); err != nil {
		return nil, err
	}
	return &o, nil
}

func (q *queries) GetOrganization(ctx context.Context, id string) (*auth.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1` + q.lockClause()
	o, err := scanOrganization(q.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return o, nil
}

func (q *queries) FindAdminOrganization(ctx context.Context) (*auth.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations
		WHERE admin_owner = TRUE AND deleted_at IS NULL ORDER BY created_at LIMIT 1`
	o, err := scanOrganization(q.q.QueryRowContext(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("failed to get admin organization: %w", err)
	}
	return o, nil
}

func (q *queries) ListOrganizationsByUser(ctx context.Context, userID string) ([]*auth.Organization, error) {
	member, err := marshalJSON([]string{userID})
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + organizationColumns + ` FROM organizations
		WHERE member_ids @> $1 AND deleted_at IS NULL ORDER BY created_at, id`
	rows, err := q.q.QueryContext(ctx, query, member)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*auth.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}
	return orgs, nil
}

func (q *queries) SaveOrganization(ctx context.Context, org *auth.Organization) error {
	var (
		contact []byte
		err     error
	)
	if org.Contact != nil {
		if contact, err = marshalJSON(org.Contact); err != nil {
			return err
		}
	}
	memberIDs, err := marshalJSON(nonNilStrings(org.MemberIDs))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO organizations (id, name, type, enabled, locked, admin_owner, owner_id, contact, member_ids,
			created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			enabled = EXCLUDED.enabled,
			locked = EXCLUDED.locked,
			admin_owner = EXCLUDED.admin_owner,
			owner_id = EXCLUDED.owner_id,
			contact = EXCLUDED.contact,
			member_ids = EXCLUDED.member_ids,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`
	_, err = q.q.ExecContext(ctx, query,
		org.ID, org.Name, string(org.Type), org.Enabled, org.Locked, org.AdminOwner, org.OwnerID, contact,
		memberIDs, org.CreatedAt, org.UpdatedAt, nullTime(org.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save organization: %w", mapError(err))
	}
	return nil
}

func scanRole(row scanner) (*auth.Role, error) {
	var (
		r     auth.Role
		roles []byte
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.OrganizationID, &roles, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	if err := unmarshalJSON(roles, &r.Roles); err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) GetRole(ctx context.Context, id string) (*auth.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM membership_roles WHERE id = $1`
	r, err := scanRole(q.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return r, nil
}

func (q *queries) FindRole(ctx context.Context, userID, organizationID string) (*auth.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM membership_roles WHERE user_id = $1 AND organization_id = $2` + q.lockClause()
	r, err := scanRole(q.q.QueryRowContext(ctx, query, userID, organizationID))
	if err != nil {
		return nil, fmt.Errorf("failed to find role: %w", err)
	}
	return r, nil
}

func (q *queries) listRoles(ctx context.Context, where string, arg string) ([]*auth.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM membership_roles WHERE ` + where + ` ORDER BY created_at, id`
	rows, err := q.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*auth.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}

func (q *queries) ListRolesByUser(ctx context.Context, userID string) ([]*auth.Role, error) {
	return q.listRoles(ctx, `user_id = $1`, userID)
}

func (q *queries) ListRolesByOrganization(ctx context.Context, organizationID string) ([]*auth.Role, error) {
	return q.listRoles(ctx, `organization_id = $1`, organizationID)
}

func (q *queries) InsertRole(ctx context.Context, role *auth.Role) error {
	roles, err := marshalJSON(nonNilStrings(role.Roles))
	if err != nil {
		return err
	}
	query := `
		INSERT INTO membership_roles (id, user_id, organization_id, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = q.q.ExecContext(ctx, query, role.ID, role.UserID, role.OrganizationID, roles, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert role: %w", mapError(err))
	}
	return nil
}

func (q *queries) DeleteRole(ctx context.Context, id string) error {
	result, err := q.q.ExecContext(ctx, `DELETE FROM membership_roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return requireAffected(result, "role "+id, storage.ErrNotFound)
}

func scanInvitation(row scanner) (*auth.Invitation, error) {
	var (
		inv      auth.Invitation
		status   string
		roles    []byte
		toUserID sql.NullString
	)
	err := row.Scan(&inv.ID, &status, &inv.Hash, &inv.Email, &roles, &inv.FromUserID, &toUserID,
		&inv.OrganizationID, &inv.Locale, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	inv.Status = auth.InvitationStatus(status)
	inv.ToUserID = toUserID.String
	if err := unmarshalJSON(roles, &inv.Roles); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (q *queries) GetInvitation(ctx context.Context, id string) (*auth.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	inv, err := scanInvitation(q.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

func (q *queries) FindInvitationByHash(ctx context.Context, hash string, status auth.InvitationStatus) (*auth.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE hash = $1 AND ($2 = '' OR status = $2)`
	inv, err := scanInvitation(q.q.QueryRowContext(ctx, query, hash, string(status)))
	if err != nil {
		return nil, fmt.Errorf("failed to find invitation: %w", err)
	}
	return inv, nil
}

func (q *queries) ListInvitations(ctx context.Context, filter storage.InvitationFilter) ([]*auth.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE 1=1`
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}
	if filter.OrganizationID != "" {
		add("organization_id =", filter.OrganizationID)
	}
	if filter.FromUserID != "" {
		add("from_user_id =", filter.FromUserID)
	}
	if filter.ToUserID != "" {
		add("to_user_id =", filter.ToUserID)
	}
	if filter.Email != "" {
		add("email =", auth.CanonicalEmail(filter.Email))
	}
	if filter.Status != "" {
		add("status =", string(filter.Status))
	}
	if !filter.CreatedBefore.IsZero() {
		add("created_at <", filter.CreatedBefore)
	}
	query += " ORDER BY created_at, id"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invs []*auth.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invitations: %w", err)
	}
	return invs, nil
}

func (q *queries) InsertInvitation(ctx context.Context, inv *auth.Invitation) error {
	roles, err := marshalJSON(nonNilStrings(inv.Roles))
	if err != nil {
		return err
	}
	query := `
		INSERT INTO invitations (id, status, hash, email, roles, from_user_id, to_user_id, organization_id, locale,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = q.q.ExecContext(ctx, query,
		inv.ID, string(inv.Status), inv.Hash, auth.CanonicalEmail(inv.Email), roles, inv.FromUserID,
		nullString(inv.ToUserID), inv.OrganizationID, inv.Locale, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert invitation: %w", mapError(err))
	}
	return nil
}

func (q *queries) TransitionInvitation(ctx context.Context, id string, from, to auth.InvitationStatus, toUserID string) error {
	query := `
		UPDATE invitations
		SET status = $1, to_user_id = COALESCE($2, to_user_id), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`
	result, err := q.q.ExecContext(ctx, query, string(to), nullString(toUserID), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition invitation: %w", mapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Nothing swapped: either the invitation is gone or it already left the from status.
	var exists bool
	if err := q.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM invitations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check invitation: %w", err)
	}
	if !exists {
		return fmt.Errorf("invitation %s: %w", id, storage.ErrNotFound)
	}
	return fmt.Errorf("invitation %s is not %s: %w", id, from, storage.ErrConflict)
}

func requireAffected(result sql.Result, what string, sentinel error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, sentinel)
	}
	return nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
