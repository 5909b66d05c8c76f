package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dealersoft/dealerdesk/internal/dbx"
	"github.com/dealersoft/dealerdesk/internal/desktop/models"
)

type SQLiteRepository struct {
	db  dbx.DBTX
	now func() int64
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: models.NowMillis}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return "", dbx.Storage("get setting", err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, r.now())
	return dbx.Storage("set setting", err)
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return dbx.Storage("delete setting", err)
}

func (r *SQLiteRepository) List(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, dbx.Storage("list settings", err)
	}
	defer rows.Close()

	result := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, dbx.Storage("scan setting", err)
		}
		result[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Storage("iterate settings", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM settings`)
	return dbx.Storage("clear settings", err)
}
