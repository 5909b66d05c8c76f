// Package store opens and migrates the on-device SQLite database backing the
// standalone desktop replica. It also hosts the cross-table identity remap
// used when the remote system assigns a canonical id different from the
// client-generated one.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dealersoft/dealerdesk/internal/dbx"
	"github.com/dealersoft/dealerdesk/internal/desktop/models"
	"github.com/dealersoft/dealerdesk/internal/desktop/store/migrations"
)

// Open opens (creating if necessary) the local database, applies pragmas and
// runs the embedded migrations. The pool is capped at a single connection:
// SQLite allows one writer and the repositories rely on serialized access.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dbx.Storage("open database", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, dbx.Storage("apply pragma", err)
		}
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return dbx.Storage("run migrations", err)
	}
	return nil
}

// RemapIdentity rewrites a record's id and every foreign key that references
// it, atomically. It is used when a push ack reports that the remote system
// adopted a different canonical id for a client-assigned one.
func RemapIdentity(ctx context.Context, db *sql.DB, kind models.Kind, oldID, newID string) error {
	if oldID == newID || oldID == "" || newID == "" {
		return nil
	}
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		switch kind {
		case models.KindClient:
			if err := remapPK(ctx, tx, "clients", oldID, newID); err != nil {
				return err
			}
			return exec(ctx, tx, "remap deals.client_id",
				`UPDATE deals SET client_id = ? WHERE client_id = ?`, newID, oldID)

		case models.KindVehicle:
			if err := remapPK(ctx, tx, "vehicles", oldID, newID); err != nil {
				return err
			}
			return exec(ctx, tx, "remap deals.vehicle_id",
				`UPDATE deals SET vehicle_id = ? WHERE vehicle_id = ?`, newID, oldID)

		case models.KindDeal:
			if err := remapPK(ctx, tx, "deals", oldID, newID); err != nil {
				return err
			}
			return exec(ctx, tx, "remap documents.deal_id",
				`UPDATE documents SET deal_id = ? WHERE deal_id = ?`, newID, oldID)

		case models.KindDocument:
			if err := remapPK(ctx, tx, "documents", oldID, newID); err != nil {
				return err
			}
			// document_ids is a JSON array of strings inside the deal row.
			return exec(ctx, tx, "remap deals.document_ids",
				`UPDATE deals
				 SET document_ids = replace(document_ids, json_quote(?), json_quote(?))
				 WHERE document_ids LIKE '%' || ? || '%'`,
				oldID, newID, oldID)

		default:
			return fmt.Errorf("unknown entity kind %q", kind)
		}
	})
}

func remapPK(ctx context.Context, tx dbx.DBTX, table, oldID, newID string) error {
	return exec(ctx, tx, "remap "+table+" id",
		fmt.Sprintf(`UPDATE %s SET id = ? WHERE id = ?`, table), newID, oldID)
}

func exec(ctx context.Context, tx dbx.DBTX, op, query string, args ...any) error {
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return dbx.Storage(op, err)
	}
	return nil
}
