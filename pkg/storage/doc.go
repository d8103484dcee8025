// Package storage defines the entity store used by the membership core.
//
// # Overview
//
// The store persists users, organizations, roles and invitations and enforces
// the unique indexes the membership rules rely on:
//
//   - user email, user username, user contact cell phone (when set)
//   - organization (owner, name) when the name is set
//   - role (user, organization)
//   - invitation hash, and (email, organization) among pending invitations
//
// # Architecture
//
// Read operations are split into focused interfaces (UserReader,
// OrganizationReader, RoleReader, InvitationReader) composed into Reader. All
// writes go through a Tx obtained from Store.RunInTx so that multi-entity
// updates such as creating an organization are atomic:
//
//	err := store.RunInTx(ctx, func(tx storage.Tx) error {
//		if err := tx.SaveOrganization(ctx, org); err != nil {
//			return err
//		}
//		return tx.SaveUser(ctx, user)
//	})
//
// Implementations report failures with the sentinel errors ErrNotFound,
// ErrDuplicate and ErrConflict, wrapped with context; test with errors.Is.
//
// # Implementations
//
// MemoryStore keeps everything in process and serialises transactions. It is
// used in tests and single-node deployments. The postgres subpackage provides
// the PostgreSQL-backed store.
package storage
