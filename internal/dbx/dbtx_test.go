package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func countItems(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestWithTx_Commit(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	err := WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`, "a", "one")
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`, "b", "two")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countItems(t, db))
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`, "a", "one"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countItems(t, db), "failed transaction must leave the table untouched")
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	require.Panics(t, func() {
		_ = WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
			if _, err := tx.ExecContext(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`, "a", "one"); err != nil {
				return err
			}
			panic("mid-transaction crash")
		})
	})
	assert.Equal(t, 0, countItems(t, db))
}

func TestStorageError(t *testing.T) {
	cause := errors.New("disk full")
	err := Storage("insert client", cause)

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "insert client", se.Op)
	assert.ErrorIs(t, err, cause)

	assert.NoError(t, Storage("noop", nil))
}
