package deals

import (
	"context"

	"github.com/dealersoft/dealerdesk/internal/desktop/models"
)

// Repository is the local storage contract for deals. Create verifies that
// the referenced client and vehicle exist; remote writes skip that check
// because the referenced records may arrive later in the same pull.
type Repository interface {
	Create(ctx context.Context, d *models.Deal) error
	GetByID(ctx context.Context, id string) (*models.Deal, error)
	GetAll(ctx context.Context) ([]models.Deal, error)
	GetByClient(ctx context.Context, clientID string) ([]models.Deal, error)
	GetByVehicle(ctx context.Context, vehicleID string) ([]models.Deal, error)
	GetByStatus(ctx context.Context, status models.DealStatus) ([]models.Deal, error)
	Search(ctx context.Context, query string) ([]models.Deal, error)
	Update(ctx context.Context, id string, upd models.DealUpdate) (*models.Deal, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*models.DealStats, error)

	GetDirty(ctx context.Context) ([]models.Deal, error)
	MarkSynced(ctx context.Context, id string, syncedAt int64) error
	ApplyRemote(ctx context.Context, d *models.Deal) error
}
