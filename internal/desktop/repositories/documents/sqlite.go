package documents

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dealersoft/dealerdesk/internal/cryptox"
	"github.com/dealersoft/dealerdesk/internal/dbx"
	"github.com/dealersoft/dealerdesk/internal/desktop/models"
)

const documentColumns = `id, deal_id, type, filename, file_path, file_size, file_checksum,
	body, body_nonce, created_at, updated_at, synced_at, deleted`

type SQLiteRepository struct {
	db     dbx.DBTX
	cipher *cryptox.Cipher
	now    func() int64
}

// NewSQLiteRepository builds a document repository. A nil cipher stores
// payloads in the clear, which is only acceptable in tests.
func NewSQLiteRepository(db dbx.DBTX, cipher *cryptox.Cipher) *SQLiteRepository {
	return &SQLiteRepository{db: db, cipher: cipher, now: models.NowMillis}
}

func (r *SQLiteRepository) Create(ctx context.Context, d *models.Document) error {
	if err := d.Validate(); err != nil {
		return err
	}
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deals WHERE id = ? AND deleted = 0`, d.DealID).Scan(&n)
	if err != nil {
		return dbx.Storage("check document deal", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: deal %s does not exist", models.ErrConsistency, d.DealID)
	}

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := r.now()
	d.CreatedAt = now
	d.UpdatedAt = now
	d.SyncedAt = nil
	d.Deleted = false
	r.fingerprint(d)

	body, nonce, err := r.seal(d.Body)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 0)`,
		d.ID, d.DealID, d.Type, d.Filename, d.FilePath, nullInt(d.FileSize),
		d.FileChecksum, body, nonce, d.CreatedAt, d.UpdatedAt)
	return dbx.Storage("insert document", err)
}

// fingerprint fills size and checksum from an inline payload. Documents that
// only reference a file on disk keep whatever the caller provided.
func (r *SQLiteRepository) fingerprint(d *models.Document) {
	if len(d.Body) == 0 {
		return
	}
	size := int64(len(d.Body))
	d.FileSize = &size
	d.FileChecksum = hex.EncodeToString(cryptox.Checksum(d.Body))
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND deleted = 0`, id)
	d, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, dbx.Storage("get document", err)
	}
	return d, nil
}

func (r *SQLiteRepository) GetByDeal(ctx context.Context, dealID string) ([]models.Document, error) {
	return r.query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE deleted = 0 AND deal_id = ? ORDER BY created_at DESC`,
		dealID)
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Document, error) {
	return r.query(ctx, `SELECT `+documentColumns+` FROM documents WHERE deleted = 0 ORDER BY created_at DESC`)
}

func (r *SQLiteRepository) Update(ctx context.Context, id string, upd models.DocumentUpdate) (*models.Document, error) {
	d, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	upd.Apply(d)
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if upd.Body != nil {
		r.fingerprint(d)
	}
	d.Touch(r.now())

	body, nonce, err := r.seal(d.Body)
	if err != nil {
		return nil, err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE documents SET type = ?, filename = ?, file_path = ?, file_size = ?,
			file_checksum = ?, body = ?, body_nonce = ?, updated_at = ?
		WHERE id = ?`,
		d.Type, d.Filename, d.FilePath, nullInt(d.FileSize), d.FileChecksum,
		body, nonce, d.UpdatedAt, d.ID)
	if err != nil {
		return nil, dbx.Storage("update document", err)
	}
	return d, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	d, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if d.SyncedAt == nil {
		_, err = r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
		return dbx.Storage("delete document", err)
	}

	d.Touch(r.now())
	_, err = r.db.ExecContext(ctx,
		`UPDATE documents SET deleted = 1, updated_at = ? WHERE id = ?`, d.UpdatedAt, id)
	return dbx.Storage("tombstone document", err)
}

func (r *SQLiteRepository) GetDirty(ctx context.Context) ([]models.Document, error) {
	return r.query(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE synced_at IS NULL OR synced_at < updated_at
		ORDER BY id`)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, syncedAt int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND deleted = 1`, id)
	if err != nil {
		return dbx.Storage("purge document tombstone", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE documents SET synced_at = ? WHERE id = ?`, syncedAt, id)
	return dbx.Storage("mark document synced", err)
}

func (r *SQLiteRepository) ApplyRemote(ctx context.Context, d *models.Document) error {
	if d.Deleted {
		_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, d.ID)
		return dbx.Storage("apply remote document delete", err)
	}

	d.MarkPulled()
	body, nonce, err := r.seal(d.Body)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			deal_id = excluded.deal_id, type = excluded.type,
			filename = excluded.filename, file_path = excluded.file_path,
			file_size = excluded.file_size, file_checksum = excluded.file_checksum,
			body = excluded.body, body_nonce = excluded.body_nonce,
			created_at = excluded.created_at, updated_at = excluded.updated_at,
			synced_at = excluded.synced_at, deleted = 0`,
		d.ID, d.DealID, d.Type, d.Filename, d.FilePath, nullInt(d.FileSize),
		d.FileChecksum, body, nonce, d.CreatedAt, d.UpdatedAt, *d.SyncedAt)
	return dbx.Storage("apply remote document", err)
}

// seal encrypts an inline payload for storage. Empty payloads and repositories
// without a cipher pass through unchanged.
func (r *SQLiteRepository) seal(plaintext []byte) (body, nonce []byte, err error) {
	if len(plaintext) == 0 || r.cipher == nil {
		return plaintext, nil, nil
	}
	body, nonce, err = r.cipher.Seal(plaintext)
	if err != nil {
		return nil, nil, fmt.Errorf("seal document body: %w", err)
	}
	return body, nonce, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]models.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.Storage("select documents", err)
	}
	defer rows.Close()

	var result []models.Document
	for rows.Next() {
		d, err := r.scan(rows)
		if err != nil {
			return nil, dbx.Storage("scan document", err)
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Storage("iterate documents", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scan(row rowScanner) (*models.Document, error) {
	var d models.Document
	var fileSize, syncedAt sql.NullInt64
	var body, nonce []byte
	err := row.Scan(&d.ID, &d.DealID, &d.Type, &d.Filename, &d.FilePath,
		&fileSize, &d.FileChecksum, &body, &nonce,
		&d.CreatedAt, &d.UpdatedAt, &syncedAt, &d.Deleted)
	if err != nil {
		return nil, err
	}
	if fileSize.Valid {
		d.FileSize = &fileSize.Int64
	}
	if syncedAt.Valid {
		d.SyncedAt = &syncedAt.Int64
	}
	switch {
	case len(nonce) > 0:
		if r.cipher == nil {
			return nil, errors.New("encrypted document body but no cipher configured")
		}
		d.Body, err = r.cipher.Open(body, nonce)
		if err != nil {
			return nil, err
		}
	default:
		d.Body = body
	}
	return &d, nil
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
