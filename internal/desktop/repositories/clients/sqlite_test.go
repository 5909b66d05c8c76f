package clients

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/dealersoft/dealerdesk/internal/desktop/models"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE clients (
  id TEXT PRIMARY KEY,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  email TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL DEFAULT '',
  zip_code TEXT NOT NULL DEFAULT '',
  drivers_license TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  synced_at INTEGER,
  deleted INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE deals (
  id TEXT PRIMARY KEY,
  client_id TEXT NOT NULL,
  vehicle_id TEXT NOT NULL,
  deleted INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)
	return db
}

func newRepo(t *testing.T, db *sql.DB) *SQLiteRepository {
	t.Helper()
	r := NewSQLiteRepository(db)
	clock := int64(1000)
	r.now = func() int64 { clock += 10; return clock }
	return r
}

func TestCreateAndGet(t *testing.T) {
	db := setupDB(t)
	r := newRepo(t, db)
	ctx := context.Background()

	c := &models.Client{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	require.NoError(t, r.Create(ctx, c))
	assert.NotEmpty(t, c.ID, "create assigns an identity")
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)
	assert.Nil(t, c.SyncedAt, "new records have never been pushed")

	got, err := r.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.True(t, got.Dirty())
}

func TestCreate_Validation(t *testing.T) {
	r := newRepo(t, setupDB(t))
	err := r.Create(context.Background(), &models.Client{FirstName: "NoLast"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGetByID_NotFound(t *testing.T) {
	r := newRepo(t, setupDB(t))
	_, err := r.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdate_BumpsUpdatedAtAndKeepsSyncedAt(t *testing.T) {
	db := setupDB(t)
	r := newRepo(t, db)
	ctx := context.Background()

	c := &models.Client{FirstName: "Ada", LastName: "Lovelace"}
	require.NoError(t, r.Create(ctx, c))
	require.NoError(t, r.MarkSynced(ctx, c.ID, c.UpdatedAt))

	phone := "555-0100"
	updated, err := r.Update(ctx, c.ID, models.ClientUpdate{Phone: &phone})
	require.NoError(t, err)
	assert.Greater(t, updated.UpdatedAt, c.UpdatedAt)

	got, err := r.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.Dirty(), "update leaves synced_at behind updated_at")
}

func TestDelete_UnsyncedIsHardDelete(t *testing.T) {
	db := setupDB(t)
	r := newRepo(t, db)
	ctx := context.Background()

	c := &models.Client{FirstName: "Ada", LastName: "Lovelace"}
	require.NoError(t, r.Create(ctx, c))
	require.NoError(t, r.Delete(ctx, c.ID))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM clients`).Scan(&n))
	assert.Equal(t, 0, n, "never-synced record leaves no tombstone")
}

func TestDelete_SyncedLeavesTombstone(t *testing.T) {
	db := setupDB(t)
	r := newRepo(t, db)
	ctx := context.Background()

	c := &models.Client{FirstName: "Ada", LastName: "Lovelace"}
	require.NoError(t, r.Create(ctx, c))
	require.NoError(t, r.MarkSynced(ctx, c.ID, c.UpdatedAt))
	require.NoError(t, r.Delete(ctx, c.ID))

	_, err := r.GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, models.ErrNotFound, "tombstones are invisible to reads")

	dirty, err := r.GetDirty(ctx)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	assert.True(t, dirty[0].Deleted, "tombstone awaits push")
}

func TestDelete_ReferencedByDealIsRefused(t *testing.T) {
	db := setupDB(t)
	r := newRepo(t, db)
	ctx := context.Background()

	c := &models.Client{FirstName: "Ada", LastName: "Lovelace"}
	require.NoError(t, r.Create(ctx, c))
	_, err := db.Exec(`INSERT INTO deals (id, client_id, vehicle_id) VALUES ('d1', ?, 'v1')`, c.ID)
	require.NoError(t, err)

	err = r.Delete(ctx, c.ID)
	assert.ErrorIs(t, err, models.ErrConsistency)
}

func TestMarkSynced_PurgesTombstone(t *testing.T) {
	db := setupDB(t)
	r := newRepo(t, db)
	ctx := context.Background()

	c := &models.Client{FirstName: "Ada", LastName: "Lovelace"}
	require.NoError(t, r.Create(ctx, c))
	require.NoError(t, r.MarkSynced(ctx, c.ID, c.UpdatedAt))
	require.NoError(t, r.Delete(ctx, c.ID))
	require.NoError(t, r.MarkSynced(ctx, c.ID, c.UpdatedAt+100))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM clients`).Scan(&n))
	assert.Equal(t, 0, n, "confirmed tombstone is purged")
}

func TestGetDirty_OnlyDirtyInIDOrder(t *testing.T) {
	db := setupDB(t)
	r := newRepo(t, db)
	ctx := context.Background()

	b := &models.Client{SyncMeta: models.SyncMeta{ID: "b"}, FirstName: "B", LastName: "B"}
	a := &models.Client{SyncMeta: models.SyncMeta{ID: "a"}, FirstName: "A", LastName: "A"}
	clean := &models.Client{SyncMeta: models.SyncMeta{ID: "z"}, FirstName: "Z", LastName: "Z"}
	require.NoError(t, r.Create(ctx, b))
	require.NoError(t, r.Create(ctx, a))
	require.NoError(t, r.Create(ctx, clean))
	require.NoError(t, r.MarkSynced(ctx, "z", clean.UpdatedAt))

	dirty, err := r.GetDirty(ctx)
	require.NoError(t, err)
	require.Len(t, dirty, 2)
	assert.Equal(t, "a", dirty[0].ID)
	assert.Equal(t, "b", dirty[1].ID)
}

func TestSearchAndGetByEmail(t *testing.T) {
	db := setupDB(t)
	r := newRepo(t, db)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, &models.Client{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}))
	require.NoError(t, r.Create(ctx, &models.Client{FirstName: "Grace", LastName: "Hopper", Phone: "555-0199"}))

	byEmail, err := r.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Len(t, byEmail, 1)

	found, err := r.Search(ctx, "hopp")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Grace", found[0].FirstName)

	byPhone, err := r.Search(ctx, "0199")
	require.NoError(t, err)
	assert.Len(t, byPhone, 1)
}

func TestApplyRemote_UpsertReconciled(t *testing.T) {
	db := setupDB(t)
	r := newRepo(t, db)
	ctx := context.Background()

	remote := &models.Client{
		SyncMeta:  models.SyncMeta{ID: "c1", CreatedAt: 50, UpdatedAt: 100},
		FirstName: "Remote", LastName: "Copy",
	}
	require.NoError(t, r.ApplyRemote(ctx, remote))

	got, err := r.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, got.Dirty(), "pulled records arrive reconciled")
	require.NotNil(t, got.SyncedAt)
	assert.Equal(t, int64(100), *got.SyncedAt)

	// remote delete removes the local row
	remote.Deleted = true
	require.NoError(t, r.ApplyRemote(ctx, remote))
	_, err = r.GetByID(ctx, "c1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
