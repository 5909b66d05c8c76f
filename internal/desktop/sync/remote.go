package sync

import (
	"context"

	"github.com/dealersoft/dealerdesk/internal/desktop/models"
)

// Ack is the remote system's per-record answer to a push. CanonicalID is set
// when the remote assigned an identity different from the client-generated
// one; the local store then remaps all references. Err is set when the remote
// rejected this record; other records in the batch are unaffected.
type Ack struct {
	ID          string
	CanonicalID string
	Err         error
}

// Remote is the wire contract the sync engine drives. Push is idempotent:
// sending the same record twice must not duplicate it remotely. When a push
// fails mid-batch the returned acks cover the records accepted before the
// failure, and the error reports the transport fault. Pull returns records
// whose authoritative UpdatedAt is strictly newer than since.
type Remote interface {
	PushClients(ctx context.Context, userID string, records []models.Client) ([]Ack, error)
	PullClients(ctx context.Context, userID string, since int64) ([]models.Client, error)

	PushVehicles(ctx context.Context, userID string, records []models.Vehicle) ([]Ack, error)
	PullVehicles(ctx context.Context, userID string, since int64) ([]models.Vehicle, error)

	PushDeals(ctx context.Context, userID string, records []models.Deal) ([]Ack, error)
	PullDeals(ctx context.Context, userID string, since int64) ([]models.Deal, error)

	PushDocuments(ctx context.Context, userID string, records []models.Document) ([]Ack, error)
	PullDocuments(ctx context.Context, userID string, since int64) ([]models.Document, error)
}
