// Package vehicles persists inventory records in the local store.
package vehicles

import (
	"context"

	"github.com/dealersoft/dealerdesk/internal/desktop/models"
)

// Repository describes CRUD, query and sync-bookkeeping operations for
// Vehicle records.
type Repository interface {
	// Create inserts a new vehicle. A VIN already present locally is refused
	// with models.ErrDuplicateVIN.
	Create(ctx context.Context, v *models.Vehicle) error

	// GetByID returns a vehicle by id, or models.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Vehicle, error)

	// GetAll lists all live vehicles, newest first.
	GetAll(ctx context.Context) ([]models.Vehicle, error)

	// GetByVIN returns the vehicle with the given VIN, or models.ErrNotFound.
	GetByVIN(ctx context.Context, vin string) (*models.Vehicle, error)

	// GetByStock returns the vehicle with the given stock number, or models.ErrNotFound.
	GetByStock(ctx context.Context, stockNumber string) (*models.Vehicle, error)

	// GetByStatus lists vehicles in the given lifecycle state.
	GetByStatus(ctx context.Context, status models.VehicleStatus) ([]models.Vehicle, error)

	// Search filters by make, model, VIN or stock number substring.
	Search(ctx context.Context, query string) ([]models.Vehicle, error)

	// Update merges the non-nil fields and bumps UpdatedAt.
	Update(ctx context.Context, id string, upd models.VehicleUpdate) (*models.Vehicle, error)

	// Delete tombstones a synced vehicle or removes an unsynced one.
	// Vehicles still referenced by deals are refused with models.ErrConsistency.
	Delete(ctx context.Context, id string) error

	// GetDirty returns records awaiting push (tombstones included), id order.
	GetDirty(ctx context.Context) ([]models.Vehicle, error)

	// MarkSynced records a successful push; confirmed tombstones are purged.
	MarkSynced(ctx context.Context, id string, syncedAt int64) error

	// ApplyRemote overwrites the local copy with a pulled record, reconciled.
	ApplyRemote(ctx context.Context, v *models.Vehicle) error
}
