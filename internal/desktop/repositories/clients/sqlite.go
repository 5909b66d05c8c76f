package clients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dealersoft/dealerdesk/internal/dbx"
	"github.com/dealersoft/dealerdesk/internal/desktop/models"
)

const clientColumns = `id, first_name, last_name, email, phone, address, city, state, zip_code,
	drivers_license, created_at, updated_at, synced_at, deleted`

// SQLiteRepository implements Repository over a DBTX (either *sql.DB or
// *sql.Tx), so the same code runs standalone and inside a transaction.
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() int64
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: models.NowMillis}
}

func (r *SQLiteRepository) Create(ctx context.Context, c *models.Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := r.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.SyncedAt = nil
	c.Deleted = false

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 0)`,
		c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Address, c.City,
		c.State, c.ZipCode, c.DriversLicense, c.CreatedAt, c.UpdatedAt)
	return dbx.Storage("insert client", err)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ? AND deleted = 0`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, dbx.Storage("get client", err)
	}
	return c, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Client, error) {
	return r.query(ctx, `SELECT `+clientColumns+` FROM clients WHERE deleted = 0 ORDER BY created_at DESC`)
}

func (r *SQLiteRepository) GetByEmail(ctx context.Context, email string) ([]models.Client, error) {
	return r.query(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE deleted = 0 AND email = ? ORDER BY created_at DESC`,
		email)
}

func (r *SQLiteRepository) Search(ctx context.Context, query string) ([]models.Client, error) {
	like := "%" + query + "%"
	return r.query(ctx, `
		SELECT `+clientColumns+` FROM clients
		WHERE deleted = 0 AND (first_name LIKE ? OR last_name LIKE ? OR email LIKE ? OR phone LIKE ?)
		ORDER BY created_at DESC`,
		like, like, like, like)
}

func (r *SQLiteRepository) Update(ctx context.Context, id string, upd models.ClientUpdate) (*models.Client, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	upd.Apply(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.Touch(r.now())

	_, err = r.db.ExecContext(ctx, `
		UPDATE clients SET first_name = ?, last_name = ?, email = ?, phone = ?,
			address = ?, city = ?, state = ?, zip_code = ?, drivers_license = ?,
			updated_at = ?
		WHERE id = ?`,
		c.FirstName, c.LastName, c.Email, c.Phone, c.Address, c.City, c.State,
		c.ZipCode, c.DriversLicense, c.UpdatedAt, c.ID)
	if err != nil {
		return nil, dbx.Storage("update client", err)
	}
	return c, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var refs int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deals WHERE client_id = ? AND deleted = 0`, id).Scan(&refs); err != nil {
		return dbx.Storage("count deal references", err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: client %s is referenced by %d deal(s)", models.ErrConsistency, id, refs)
	}

	// A record the remote has never seen can simply vanish; a synced one
	// leaves a tombstone until the delete is pushed.
	if c.SyncedAt == nil {
		_, err = r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
		return dbx.Storage("delete client", err)
	}

	c.Touch(r.now())
	_, err = r.db.ExecContext(ctx,
		`UPDATE clients SET deleted = 1, updated_at = ? WHERE id = ?`, c.UpdatedAt, id)
	return dbx.Storage("tombstone client", err)
}

func (r *SQLiteRepository) GetDirty(ctx context.Context) ([]models.Client, error) {
	return r.query(ctx, `
		SELECT `+clientColumns+` FROM clients
		WHERE synced_at IS NULL OR synced_at < updated_at
		ORDER BY id`)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, syncedAt int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM clients WHERE id = ? AND deleted = 1`, id)
	if err != nil {
		return dbx.Storage("purge client tombstone", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE clients SET synced_at = ? WHERE id = ?`, syncedAt, id)
	return dbx.Storage("mark client synced", err)
}

func (r *SQLiteRepository) ApplyRemote(ctx context.Context, c *models.Client) error {
	if c.Deleted {
		_, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, c.ID)
		return dbx.Storage("apply remote client delete", err)
	}

	c.MarkPulled()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name, last_name = excluded.last_name,
			email = excluded.email, phone = excluded.phone,
			address = excluded.address, city = excluded.city,
			state = excluded.state, zip_code = excluded.zip_code,
			drivers_license = excluded.drivers_license,
			created_at = excluded.created_at, updated_at = excluded.updated_at,
			synced_at = excluded.synced_at, deleted = 0`,
		c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Address, c.City,
		c.State, c.ZipCode, c.DriversLicense, c.CreatedAt, c.UpdatedAt, *c.SyncedAt)
	return dbx.Storage("apply remote client", err)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]models.Client, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.Storage("select clients", err)
	}
	defer rows.Close()

	var result []models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, dbx.Storage("scan client", err)
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Storage("iterate clients", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*models.Client, error) {
	var c models.Client
	var syncedAt sql.NullInt64
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.Address, &c.City, &c.State, &c.ZipCode, &c.DriversLicense,
		&c.CreatedAt, &c.UpdatedAt, &syncedAt, &c.Deleted)
	if err != nil {
		return nil, err
	}
	if syncedAt.Valid {
		c.SyncedAt = &syncedAt.Int64
	}
	return &c, nil
}
