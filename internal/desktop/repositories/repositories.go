// Package repositories wires the per-entity SQLite repositories into one
// bundle. The sync engine rebuilds a bundle over a transaction to apply a
// pulled batch atomically.
package repositories

import (
	"github.com/dealersoft/dealerdesk/internal/cryptox"
	"github.com/dealersoft/dealerdesk/internal/dbx"
	"github.com/dealersoft/dealerdesk/internal/desktop/repositories/clients"
	"github.com/dealersoft/dealerdesk/internal/desktop/repositories/deals"
	"github.com/dealersoft/dealerdesk/internal/desktop/repositories/documents"
	"github.com/dealersoft/dealerdesk/internal/desktop/repositories/settings"
	"github.com/dealersoft/dealerdesk/internal/desktop/repositories/vehicles"
)

type Bundle struct {
	Clients   clients.Repository
	Vehicles  vehicles.Repository
	Deals     deals.Repository
	Documents documents.Repository
	Settings  settings.Repository
}

// New builds a bundle over db, which may be a *sql.DB or an open *sql.Tx.
// cipher may be nil; document payloads are then stored unencrypted.
func New(db dbx.DBTX, cipher *cryptox.Cipher) *Bundle {
	return &Bundle{
		Clients:   clients.NewSQLiteRepository(db),
		Vehicles:  vehicles.NewSQLiteRepository(db),
		Deals:     deals.NewSQLiteRepository(db),
		Documents: documents.NewSQLiteRepository(db, cipher),
		Settings:  settings.NewSQLiteRepository(db),
	}
}
