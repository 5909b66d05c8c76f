// Package clients persists dealership customer records in the local store.
package clients

import (
	"context"

	"github.com/dealersoft/dealerdesk/internal/desktop/models"
)

// Repository describes CRUD, query and sync-bookkeeping operations for
// Client records. Implementations are backed by the local SQLite database.
type Repository interface {
	// Create inserts a new client, assigning identity and timestamps.
	Create(ctx context.Context, c *models.Client) error

	// GetByID returns a client by id, or models.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Client, error)

	// GetAll lists all live clients, newest first.
	GetAll(ctx context.Context) ([]models.Client, error)

	// GetByEmail lists clients with the given email.
	GetByEmail(ctx context.Context, email string) ([]models.Client, error)

	// Search filters by name, email or phone substring.
	Search(ctx context.Context, query string) ([]models.Client, error)

	// Update merges the non-nil fields and bumps UpdatedAt.
	Update(ctx context.Context, id string, upd models.ClientUpdate) (*models.Client, error)

	// Delete tombstones a synced client or removes an unsynced one.
	// Clients still referenced by deals are refused with models.ErrConsistency.
	Delete(ctx context.Context, id string) error

	// GetDirty returns records awaiting push (tombstones included), id order.
	GetDirty(ctx context.Context) ([]models.Client, error)

	// MarkSynced records a successful push; confirmed tombstones are purged.
	MarkSynced(ctx context.Context, id string, syncedAt int64) error

	// ApplyRemote overwrites the local copy with a pulled record, reconciled.
	ApplyRemote(ctx context.Context, c *models.Client) error
}
