package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns all schema migrations in order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					username TEXT NOT NULL,
					email TEXT NOT NULL,
					password TEXT NOT NULL DEFAULT '',
					enabled BOOLEAN NOT NULL DEFAULT FALSE,
					roles JSONB NOT NULL DEFAULT '[]',
					active_organization_id TEXT,
					active_role_id TEXT,
					organization_ids JSONB NOT NULL DEFAULT '[]',
					contact JSONB,
					cell_phone TEXT NOT NULL DEFAULT '',
					auth_provider TEXT NOT NULL DEFAULT '',
					first_auth_provider TEXT NOT NULL DEFAULT '',
					auth_data JSONB NOT NULL DEFAULT '{}',
					attributes JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMPTZ
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_cell_phone ON users(cell_phone) WHERE cell_phone <> '';
				CREATE INDEX IF NOT EXISTS idx_users_auth_data ON users USING GIN (auth_data);
			`,
		},
		{
			Version:     2,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					type TEXT NOT NULL,
					enabled BOOLEAN NOT NULL DEFAULT TRUE,
					locked BOOLEAN NOT NULL DEFAULT FALSE,
					admin_owner BOOLEAN NOT NULL DEFAULT FALSE,
					owner_id TEXT NOT NULL,
					contact JSONB,
					member_ids JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMPTZ
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_organizations_owner_name ON organizations(owner_id, name) WHERE name <> '';
				CREATE INDEX IF NOT EXISTS idx_organizations_member_ids ON organizations USING GIN (member_ids);
			`,
		},
		{
			Version:     3,
			Description: "Create membership roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS membership_roles (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					roles JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(user_id, organization_id)
				);

				CREATE INDEX IF NOT EXISTS idx_membership_roles_organization_id ON membership_roles(organization_id);
			`,
		},
		{
			Version:     4,
			Description: "Create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitations (
					id TEXT PRIMARY KEY,
					status TEXT NOT NULL DEFAULT 'pending',
					hash TEXT NOT NULL,
					email TEXT NOT NULL,
					roles JSONB NOT NULL DEFAULT '[]',
					from_user_id TEXT NOT NULL,
					to_user_id TEXT,
					organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					locale TEXT NOT NULL DEFAULT 'en',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_invitations_hash ON invitations(hash);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_invitations_pending_email ON invitations(email, organization_id) WHERE status = 'pending';
				CREATE INDEX IF NOT EXISTS idx_invitations_status_created_at ON invitations(status, created_at);
			`,
		},
		{
			Version:     5,
			Description: "Allow many users without email or username",
			SQL: `
				DROP INDEX IF EXISTS idx_users_email;
				DROP INDEX IF EXISTS idx_users_username;
				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email <> '';
				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username) WHERE username <> '';
			`,
		},
	}
}

// Migrate applies every migration not yet recorded in schema_migrations
func Migrate(ctx context.Context, db *sql.DB, logger *logrus.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
