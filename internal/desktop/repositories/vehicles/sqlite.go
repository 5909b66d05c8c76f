package vehicles

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dealersoft/dealerdesk/internal/dbx"
	"github.com/dealersoft/dealerdesk/internal/desktop/models"
)

const vehicleColumns = `id, vin, stock_number, year, make, model, trim, body, doors,
	transmission, engine, cylinders, title_number, mileage, color, price, cost,
	status, description, images, created_at, updated_at, synced_at, deleted`

// SQLiteRepository implements Repository over a DBTX.
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() int64
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: models.NowMillis}
}

func (r *SQLiteRepository) Create(ctx context.Context, v *models.Vehicle) error {
	if err := v.Validate(); err != nil {
		return err
	}

	var existing string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM vehicles WHERE vin = ? AND deleted = 0`, v.VIN).Scan(&existing)
	if err == nil {
		return fmt.Errorf("%w: %s", models.ErrDuplicateVIN, v.VIN)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return dbx.Storage("check vin", err)
	}

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := r.now()
	v.CreatedAt = now
	v.UpdatedAt = now
	v.SyncedAt = nil
	v.Deleted = false

	images, err := marshalImages(v.Images)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO vehicles (`+vehicleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 0)`,
		v.ID, v.VIN, v.StockNumber, v.Year, v.Make, v.Model, v.Trim, v.Body,
		v.Doors, v.Transmission, v.Engine, v.Cylinders, v.TitleNumber,
		v.Mileage, v.Color, v.Price, nullFloat(v.Cost), string(v.Status),
		v.Description, images, v.CreatedAt, v.UpdatedAt)
	return dbx.Storage("insert vehicle", err)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Vehicle, error) {
	return r.one(ctx, "id", id)
}

func (r *SQLiteRepository) GetByVIN(ctx context.Context, vin string) (*models.Vehicle, error) {
	return r.one(ctx, "vin", vin)
}

func (r *SQLiteRepository) GetByStock(ctx context.Context, stockNumber string) (*models.Vehicle, error) {
	return r.one(ctx, "stock_number", stockNumber)
}

func (r *SQLiteRepository) one(ctx context.Context, column, value string) (*models.Vehicle, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE `+column+` = ? AND deleted = 0`, value)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vehicle %s=%s: %w", column, value, models.ErrNotFound)
	}
	if err != nil {
		return nil, dbx.Storage("get vehicle", err)
	}
	return v, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Vehicle, error) {
	return r.query(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE deleted = 0 ORDER BY created_at DESC`)
}

func (r *SQLiteRepository) GetByStatus(ctx context.Context, status models.VehicleStatus) ([]models.Vehicle, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown vehicle status %q", models.ErrValidation, status)
	}
	return r.query(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE deleted = 0 AND status = ? ORDER BY created_at DESC`,
		string(status))
}

func (r *SQLiteRepository) Search(ctx context.Context, query string) ([]models.Vehicle, error) {
	like := "%" + query + "%"
	return r.query(ctx, `
		SELECT `+vehicleColumns+` FROM vehicles
		WHERE deleted = 0 AND (make LIKE ? OR model LIKE ? OR vin LIKE ? OR stock_number LIKE ?)
		ORDER BY created_at DESC`,
		like, like, like, like)
}

func (r *SQLiteRepository) Update(ctx context.Context, id string, upd models.VehicleUpdate) (*models.Vehicle, error) {
	v, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	upd.Apply(v)
	if err := v.Validate(); err != nil {
		return nil, err
	}
	v.Touch(r.now())

	images, err := marshalImages(v.Images)
	if err != nil {
		return nil, err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE vehicles SET vin = ?, stock_number = ?, year = ?, make = ?, model = ?,
			trim = ?, body = ?, doors = ?, transmission = ?, engine = ?, cylinders = ?,
			title_number = ?, mileage = ?, color = ?, price = ?, cost = ?, status = ?,
			description = ?, images = ?, updated_at = ?
		WHERE id = ?`,
		v.VIN, v.StockNumber, v.Year, v.Make, v.Model, v.Trim, v.Body, v.Doors,
		v.Transmission, v.Engine, v.Cylinders, v.TitleNumber, v.Mileage, v.Color,
		v.Price, nullFloat(v.Cost), string(v.Status), v.Description, images,
		v.UpdatedAt, v.ID)
	if err != nil {
		return nil, dbx.Storage("update vehicle", err)
	}
	return v, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	v, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var refs int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deals WHERE vehicle_id = ? AND deleted = 0`, id).Scan(&refs); err != nil {
		return dbx.Storage("count deal references", err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: vehicle %s is referenced by %d deal(s)", models.ErrConsistency, id, refs)
	}

	if v.SyncedAt == nil {
		_, err = r.db.ExecContext(ctx, `DELETE FROM vehicles WHERE id = ?`, id)
		return dbx.Storage("delete vehicle", err)
	}

	v.Touch(r.now())
	_, err = r.db.ExecContext(ctx,
		`UPDATE vehicles SET deleted = 1, updated_at = ? WHERE id = ?`, v.UpdatedAt, id)
	return dbx.Storage("tombstone vehicle", err)
}

func (r *SQLiteRepository) GetDirty(ctx context.Context) ([]models.Vehicle, error) {
	return r.query(ctx, `
		SELECT `+vehicleColumns+` FROM vehicles
		WHERE synced_at IS NULL OR synced_at < updated_at
		ORDER BY id`)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, syncedAt int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM vehicles WHERE id = ? AND deleted = 1`, id)
	if err != nil {
		return dbx.Storage("purge vehicle tombstone", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE vehicles SET synced_at = ? WHERE id = ?`, syncedAt, id)
	return dbx.Storage("mark vehicle synced", err)
}

func (r *SQLiteRepository) ApplyRemote(ctx context.Context, v *models.Vehicle) error {
	if v.Deleted {
		_, err := r.db.ExecContext(ctx, `DELETE FROM vehicles WHERE id = ?`, v.ID)
		return dbx.Storage("apply remote vehicle delete", err)
	}
	if !v.Status.Valid() {
		return fmt.Errorf("%w: unknown vehicle status %q", models.ErrValidation, v.Status)
	}

	v.MarkPulled()
	images, err := marshalImages(v.Images)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO vehicles (`+vehicleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			vin = excluded.vin, stock_number = excluded.stock_number,
			year = excluded.year, make = excluded.make, model = excluded.model,
			trim = excluded.trim, body = excluded.body, doors = excluded.doors,
			transmission = excluded.transmission, engine = excluded.engine,
			cylinders = excluded.cylinders, title_number = excluded.title_number,
			mileage = excluded.mileage, color = excluded.color,
			price = excluded.price, cost = excluded.cost, status = excluded.status,
			description = excluded.description, images = excluded.images,
			created_at = excluded.created_at, updated_at = excluded.updated_at,
			synced_at = excluded.synced_at, deleted = 0`,
		v.ID, v.VIN, v.StockNumber, v.Year, v.Make, v.Model, v.Trim, v.Body,
		v.Doors, v.Transmission, v.Engine, v.Cylinders, v.TitleNumber,
		v.Mileage, v.Color, v.Price, nullFloat(v.Cost), string(v.Status),
		v.Description, images, v.CreatedAt, v.UpdatedAt, *v.SyncedAt)
	return dbx.Storage("apply remote vehicle", err)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]models.Vehicle, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.Storage("select vehicles", err)
	}
	defer rows.Close()

	var result []models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, dbx.Storage("scan vehicle", err)
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Storage("iterate vehicles", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row rowScanner) (*models.Vehicle, error) {
	var v models.Vehicle
	var cost sql.NullFloat64
	var syncedAt sql.NullInt64
	var status, images string
	err := row.Scan(&v.ID, &v.VIN, &v.StockNumber, &v.Year, &v.Make, &v.Model,
		&v.Trim, &v.Body, &v.Doors, &v.Transmission, &v.Engine, &v.Cylinders,
		&v.TitleNumber, &v.Mileage, &v.Color, &v.Price, &cost, &status,
		&v.Description, &images, &v.CreatedAt, &v.UpdatedAt, &syncedAt, &v.Deleted)
	if err != nil {
		return nil, err
	}
	v.Status = models.VehicleStatus(status)
	if cost.Valid {
		v.Cost = &cost.Float64
	}
	if syncedAt.Valid {
		v.SyncedAt = &syncedAt.Int64
	}
	if images != "" && images != "[]" {
		if err := json.Unmarshal([]byte(images), &v.Images); err != nil {
			return nil, fmt.Errorf("decode images: %w", err)
		}
	}
	return &v, nil
}

func marshalImages(images []string) (string, error) {
	if len(images) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("encode images: %w", err)
	}
	return string(b), nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
