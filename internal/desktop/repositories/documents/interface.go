package documents

import (
	"context"

	"github.com/dealersoft/dealerdesk/internal/desktop/models"
)

// Repository stores deal documents. Inline payloads are encrypted at rest
// when the repository is built with a cipher; callers always see plaintext.
type Repository interface {
	Create(ctx context.Context, d *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	GetByDeal(ctx context.Context, dealID string) ([]models.Document, error)
	GetAll(ctx context.Context) ([]models.Document, error)
	Update(ctx context.Context, id string, upd models.DocumentUpdate) (*models.Document, error)
	Delete(ctx context.Context, id string) error

	GetDirty(ctx context.Context) ([]models.Document, error)
	MarkSynced(ctx context.Context, id string, syncedAt int64) error
	ApplyRemote(ctx context.Context, d *models.Document) error
}
