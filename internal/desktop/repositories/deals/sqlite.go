package deals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dealersoft/dealerdesk/internal/dbx"
	"github.com/dealersoft/dealerdesk/internal/desktop/models"
)

const dealColumns = `id, type, client_id, vehicle_id, status, total_amount, sale_date,
	sale_amount, sales_tax, doc_fee, trade_in_value, down_payment, financed_amount,
	document_ids, cobuyer_data, created_at, updated_at, synced_at, deleted`

type SQLiteRepository struct {
	db  dbx.DBTX
	now func() int64
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: models.NowMillis}
}

func (r *SQLiteRepository) Create(ctx context.Context, d *models.Deal) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := r.checkReference(ctx, "clients", d.ClientID); err != nil {
		return err
	}
	if err := r.checkReference(ctx, "vehicles", d.VehicleID); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := r.now()
	d.CreatedAt = now
	d.UpdatedAt = now
	d.SyncedAt = nil
	d.Deleted = false

	docIDs, err := marshalDocumentIDs(d.DocumentIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO deals (`+dealColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 0)`,
		d.ID, string(d.Type), d.ClientID, d.VehicleID, string(d.Status),
		d.TotalAmount, nullInt(d.SaleDate), nullFloat(d.SaleAmount),
		nullFloat(d.SalesTax), nullFloat(d.DocFee), nullFloat(d.TradeInValue),
		nullFloat(d.DownPayment), nullFloat(d.FinancedAmount),
		docIDs, nullJSON(d.CobuyerData), d.CreatedAt, d.UpdatedAt)
	return dbx.Storage("insert deal", err)
}

// checkReference guards against deals pointing at records that do not exist
// locally. Tombstoned rows count as gone.
func (r *SQLiteRepository) checkReference(ctx context.Context, table, id string) error {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE id = ? AND deleted = 0`, id).Scan(&n)
	if err != nil {
		return dbx.Storage("check deal reference", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s does not exist", models.ErrConsistency, table[:len(table)-1], id)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Deal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE id = ? AND deleted = 0`, id)
	d, err := scanDeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deal %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, dbx.Storage("get deal", err)
	}
	return d, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Deal, error) {
	return r.query(ctx, `SELECT `+dealColumns+` FROM deals WHERE deleted = 0 ORDER BY created_at DESC`)
}

func (r *SQLiteRepository) GetByClient(ctx context.Context, clientID string) ([]models.Deal, error) {
	return r.query(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE deleted = 0 AND client_id = ? ORDER BY created_at DESC`,
		clientID)
}

func (r *SQLiteRepository) GetByVehicle(ctx context.Context, vehicleID string) ([]models.Deal, error) {
	return r.query(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE deleted = 0 AND vehicle_id = ? ORDER BY created_at DESC`,
		vehicleID)
}

func (r *SQLiteRepository) GetByStatus(ctx context.Context, status models.DealStatus) ([]models.Deal, error) {
	if !status.Valid() {
		return nil, invalidStatus(status)
	}
	return r.query(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE deleted = 0 AND status = ? ORDER BY created_at DESC`,
		string(status))
}

// Search matches against the referenced client name and vehicle identity,
// joining through the weak references.
func (r *SQLiteRepository) Search(ctx context.Context, query string) ([]models.Deal, error) {
	like := "%" + query + "%"
	return r.query(ctx, `
		SELECT `+prefixed(dealColumns, "d.")+` FROM deals d
		LEFT JOIN clients c ON c.id = d.client_id
		LEFT JOIN vehicles v ON v.id = d.vehicle_id
		WHERE d.deleted = 0 AND (c.first_name LIKE ? OR c.last_name LIKE ?
			OR v.vin LIKE ? OR v.make LIKE ? OR v.model LIKE ?)
		ORDER BY d.created_at DESC`,
		like, like, like, like, like)
}

func (r *SQLiteRepository) Update(ctx context.Context, id string, upd models.DealUpdate) (*models.Deal, error) {
	d, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	upd.Apply(d)
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.Touch(r.now())

	docIDs, err := marshalDocumentIDs(d.DocumentIDs)
	if err != nil {
		return nil, err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE deals SET type = ?, status = ?, total_amount = ?, sale_date = ?,
			sale_amount = ?, sales_tax = ?, doc_fee = ?, trade_in_value = ?,
			down_payment = ?, financed_amount = ?, document_ids = ?,
			cobuyer_data = ?, updated_at = ?
		WHERE id = ?`,
		string(d.Type), string(d.Status), d.TotalAmount, nullInt(d.SaleDate),
		nullFloat(d.SaleAmount), nullFloat(d.SalesTax), nullFloat(d.DocFee),
		nullFloat(d.TradeInValue), nullFloat(d.DownPayment), nullFloat(d.FinancedAmount),
		docIDs, nullJSON(d.CobuyerData), d.UpdatedAt, d.ID)
	if err != nil {
		return nil, dbx.Storage("update deal", err)
	}
	return d, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	d, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if d.SyncedAt == nil {
		_, err = r.db.ExecContext(ctx, `DELETE FROM deals WHERE id = ?`, id)
		return dbx.Storage("delete deal", err)
	}

	d.Touch(r.now())
	_, err = r.db.ExecContext(ctx,
		`UPDATE deals SET deleted = 1, updated_at = ? WHERE id = ?`, d.UpdatedAt, id)
	return dbx.Storage("tombstone deal", err)
}

func (r *SQLiteRepository) Stats(ctx context.Context) (*models.DealStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM deals WHERE deleted = 0 GROUP BY status`)
	if err != nil {
		return nil, dbx.Storage("deal stats", err)
	}
	defer rows.Close()

	stats := &models.DealStats{ByStatus: map[models.DealStatus]int{}}
	for rows.Next() {
		var status string
		var count int
		var amount float64
		if err := rows.Scan(&status, &count, &amount); err != nil {
			return nil, dbx.Storage("scan deal stats", err)
		}
		stats.ByStatus[models.DealStatus(status)] = count
		stats.Total += count
		stats.TotalAmount += amount
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Storage("iterate deal stats", err)
	}
	if stats.Total > 0 {
		stats.AverageAmount = stats.TotalAmount / float64(stats.Total)
	}
	return stats, nil
}

func (r *SQLiteRepository) GetDirty(ctx context.Context) ([]models.Deal, error) {
	return r.query(ctx, `
		SELECT `+dealColumns+` FROM deals
		WHERE synced_at IS NULL OR synced_at < updated_at
		ORDER BY id`)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, syncedAt int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM deals WHERE id = ? AND deleted = 1`, id)
	if err != nil {
		return dbx.Storage("purge deal tombstone", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE deals SET synced_at = ? WHERE id = ?`, syncedAt, id)
	return dbx.Storage("mark deal synced", err)
}

func (r *SQLiteRepository) ApplyRemote(ctx context.Context, d *models.Deal) error {
	if d.Deleted {
		_, err := r.db.ExecContext(ctx, `DELETE FROM deals WHERE id = ?`, d.ID)
		return dbx.Storage("apply remote deal delete", err)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: unknown deal type %q", models.ErrValidation, d.Type)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: unknown deal status %q", models.ErrValidation, d.Status)
	}

	d.MarkPulled()
	docIDs, err := marshalDocumentIDs(d.DocumentIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO deals (`+dealColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type, client_id = excluded.client_id,
			vehicle_id = excluded.vehicle_id, status = excluded.status,
			total_amount = excluded.total_amount, sale_date = excluded.sale_date,
			sale_amount = excluded.sale_amount, sales_tax = excluded.sales_tax,
			doc_fee = excluded.doc_fee, trade_in_value = excluded.trade_in_value,
			down_payment = excluded.down_payment, financed_amount = excluded.financed_amount,
			document_ids = excluded.document_ids, cobuyer_data = excluded.cobuyer_data,
			created_at = excluded.created_at, updated_at = excluded.updated_at,
			synced_at = excluded.synced_at, deleted = 0`,
		d.ID, string(d.Type), d.ClientID, d.VehicleID, string(d.Status),
		d.TotalAmount, nullInt(d.SaleDate), nullFloat(d.SaleAmount),
		nullFloat(d.SalesTax), nullFloat(d.DocFee), nullFloat(d.TradeInValue),
		nullFloat(d.DownPayment), nullFloat(d.FinancedAmount),
		docIDs, nullJSON(d.CobuyerData), d.CreatedAt, d.UpdatedAt, *d.SyncedAt)
	return dbx.Storage("apply remote deal", err)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]models.Deal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.Storage("select deals", err)
	}
	defer rows.Close()

	var result []models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, dbx.Storage("scan deal", err)
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Storage("iterate deals", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row rowScanner) (*models.Deal, error) {
	var d models.Deal
	var dealType, status, docIDs string
	var saleDate, syncedAt sql.NullInt64
	var saleAmount, salesTax, docFee, tradeIn, downPayment, financed sql.NullFloat64
	var cobuyer sql.NullString
	err := row.Scan(&d.ID, &dealType, &d.ClientID, &d.VehicleID, &status,
		&d.TotalAmount, &saleDate, &saleAmount, &salesTax, &docFee, &tradeIn,
		&downPayment, &financed, &docIDs, &cobuyer,
		&d.CreatedAt, &d.UpdatedAt, &syncedAt, &d.Deleted)
	if err != nil {
		return nil, err
	}
	d.Type = models.DealType(dealType)
	d.Status = models.DealStatus(status)
	if saleDate.Valid {
		d.SaleDate = &saleDate.Int64
	}
	d.SaleAmount = floatPtr(saleAmount)
	d.SalesTax = floatPtr(salesTax)
	d.DocFee = floatPtr(docFee)
	d.TradeInValue = floatPtr(tradeIn)
	d.DownPayment = floatPtr(downPayment)
	d.FinancedAmount = floatPtr(financed)
	if syncedAt.Valid {
		d.SyncedAt = &syncedAt.Int64
	}
	if docIDs != "" && docIDs != "[]" {
		if err := json.Unmarshal([]byte(docIDs), &d.DocumentIDs); err != nil {
			return nil, fmt.Errorf("decode document ids: %w", err)
		}
	}
	if cobuyer.Valid && cobuyer.String != "" {
		d.CobuyerData = json.RawMessage(cobuyer.String)
	}
	return &d, nil
}

func marshalDocumentIDs(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode document ids: %w", err)
	}
	return string(b), nil
}

func invalidStatus(status models.DealStatus) error {
	return fmt.Errorf("%w: unknown deal status %q", models.ErrValidation, string(status))
}

// prefixed qualifies every column in a comma-separated list, for joins.
func prefixed(columns, prefix string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullJSON(v json.RawMessage) any {
	if len(v) == 0 {
		return nil
	}
	return string(v)
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
