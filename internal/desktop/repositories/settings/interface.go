package settings

import "context"

// Repository is a small key/value store for app settings and sync bookkeeping
// (pull watermarks, last sync status). Get returns models.ErrNotFound for a
// missing key.
type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string]string, error)
	Clear(ctx context.Context) error
}
