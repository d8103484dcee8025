package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/tenancy/pkg/storage"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store implements storage.Store on PostgreSQL
type Store struct {
	queries
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a store over an open database. Run Migrate first.
func NewStore(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

// RunInTx implements storage.Store.RunInTx
func (s *Store) RunInTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{q: tx, forUpdate: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres unhealthy: %w", err)
	}
	return nil
}

// Close implements storage.Store.Close
func (s *Store) Close() error {
	return s.db.Close()
}
