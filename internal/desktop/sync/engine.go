// Package sync reconciles the local replica with the remote system: it pushes
// dirty records, pulls remote changes since a per-user watermark, and applies
// them under a last-writer-wins policy. The Scheduler in this package decides
// when cycles run.
package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dealersoft/dealerdesk/internal/cryptox"
	"github.com/dealersoft/dealerdesk/internal/dbx"
	"github.com/dealersoft/dealerdesk/internal/desktop/models"
	"github.com/dealersoft/dealerdesk/internal/desktop/repositories"
	"github.com/dealersoft/dealerdesk/internal/desktop/store"
	"github.com/dealersoft/dealerdesk/internal/logging"
)

const (
	watermarkPrefix = "last_pulled_at:"
	statusKey       = "sync_status"
)

// Engine runs one reconciliation cycle per PerformSync call. It is safe for
// a single caller at a time; the Scheduler enforces that.
type Engine struct {
	db     *sql.DB
	repos  *repositories.Bundle
	remote Remote
	cipher *cryptox.Cipher
	log    logging.Logger
	now    func() int64
}

func NewEngine(db *sql.DB, repos *repositories.Bundle, remote Remote, cipher *cryptox.Cipher, log logging.Logger) *Engine {
	return &Engine{
		db:     db,
		repos:  repos,
		remote: remote,
		cipher: cipher,
		log:    log.With("component", "sync"),
		now:    models.NowMillis,
	}
}

// PerformSync reconciles the replica for userID. With an empty userID it
// returns immediately with Success=false and touches neither the network nor
// local state. Push runs strictly before pull; a transport failure aborts the
// cycle but keeps whatever progress individual records already made.
func (e *Engine) PerformSync(ctx context.Context, userID string) (*Result, error) {
	res := newResult()
	if userID == "" {
		return res, nil
	}

	log := e.log.With("user_id", userID)
	log.Debug(ctx, "sync cycle started")

	err := e.push(ctx, userID, res)
	if err == nil {
		err = e.pull(ctx, userID, res)
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		res.Errors = append(res.Errors, err)
		res.Success = false
		e.writeStatus(res)
		log.Warn(ctx, "sync cycle aborted",
			"pushed", res.PushedTotal(), "pulled", res.PulledTotal(), "error", err)
		return res, err
	}

	res.Success = true
	e.writeStatus(res)
	log.Info(ctx, "sync cycle finished",
		"pushed", res.PushedTotal(), "pulled", res.PulledTotal(), "record_errors", len(res.Errors))
	return res, nil
}

func (e *Engine) push(ctx context.Context, userID string, res *Result) error {
	if err := pushKind(ctx, e, userID, models.KindClient,
		e.repos.Clients.GetDirty, e.remote.PushClients, e.repos.Clients.MarkSynced, clientMeta, res); err != nil {
		return err
	}
	if err := pushKind(ctx, e, userID, models.KindVehicle,
		e.repos.Vehicles.GetDirty, e.remote.PushVehicles, e.repos.Vehicles.MarkSynced, vehicleMeta, res); err != nil {
		return err
	}
	if err := pushKind(ctx, e, userID, models.KindDeal,
		e.repos.Deals.GetDirty, e.remote.PushDeals, e.repos.Deals.MarkSynced, dealMeta, res); err != nil {
		return err
	}
	return pushKind(ctx, e, userID, models.KindDocument,
		e.repos.Documents.GetDirty, e.remote.PushDocuments, e.repos.Documents.MarkSynced, documentMeta, res)
}

// pushKind sends one kind's dirty set in identity order. syncedAt is the
// UpdatedAt captured before the round trip, so an edit racing the push leaves
// the record dirty for the next cycle.
func pushKind[T any](ctx context.Context, e *Engine, userID string, kind models.Kind,
	getDirty func(context.Context) ([]T, error),
	push func(context.Context, string, []T) ([]Ack, error),
	markSynced func(context.Context, string, int64) error,
	meta func(*T) *models.SyncMeta,
	res *Result,
) error {
	dirty, err := getDirty(ctx)
	if err != nil {
		return fmt.Errorf("collect dirty %s: %w", kind, err)
	}
	if len(dirty) == 0 {
		return nil
	}

	pushedAt := make(map[string]int64, len(dirty))
	for i := range dirty {
		m := meta(&dirty[i])
		pushedAt[m.ID] = m.UpdatedAt
	}

	acks, pushErr := push(ctx, userID, dirty)
	for _, ack := range acks {
		if ack.Err != nil {
			res.Errors = append(res.Errors, &PushError{Kind: kind, ID: ack.ID, Err: ack.Err})
			continue
		}
		id := ack.ID
		if ack.CanonicalID != "" && ack.CanonicalID != ack.ID {
			if err := store.RemapIdentity(ctx, e.db, kind, ack.ID, ack.CanonicalID); err != nil {
				res.Errors = append(res.Errors, &PushError{Kind: kind, ID: ack.ID, Err: err})
				continue
			}
			id = ack.CanonicalID
		}
		if err := markSynced(ctx, id, pushedAt[ack.ID]); err != nil {
			res.Errors = append(res.Errors, &PushError{Kind: kind, ID: ack.ID, Err: err})
			continue
		}
		res.Pushed[kind]++
	}

	if pushErr != nil {
		return &PushError{Kind: kind, Err: pushErr}
	}
	return nil
}

func (e *Engine) pull(ctx context.Context, userID string, res *Result) error {
	since := e.watermark(ctx, userID)
	win := pullWindow{maxApplied: since}

	if err := pullKind(ctx, e, models.KindClient, userID, since, e.remote.PullClients, clientMeta,
		func(ctx context.Context, b *repositories.Bundle, c *models.Client) error {
			return b.Clients.ApplyRemote(ctx, c)
		}, res, &win); err != nil {
		return err
	}
	if err := pullKind(ctx, e, models.KindVehicle, userID, since, e.remote.PullVehicles, vehicleMeta,
		func(ctx context.Context, b *repositories.Bundle, v *models.Vehicle) error {
			return b.Vehicles.ApplyRemote(ctx, v)
		}, res, &win); err != nil {
		return err
	}
	if err := pullKind(ctx, e, models.KindDeal, userID, since, e.remote.PullDeals, dealMeta,
		func(ctx context.Context, b *repositories.Bundle, d *models.Deal) error {
			return b.Deals.ApplyRemote(ctx, d)
		}, res, &win); err != nil {
		return err
	}
	if err := pullKind(ctx, e, models.KindDocument, userID, since, e.remote.PullDocuments, documentMeta,
		func(ctx context.Context, b *repositories.Bundle, d *models.Document) error {
			return b.Documents.ApplyRemote(ctx, d)
		}, res, &win); err != nil {
		return err
	}

	// The watermark moves only after every kind has been pulled and applied,
	// so an aborted cycle re-requests the same window next time. A record
	// that failed to apply holds the watermark below its timestamp so the
	// next pull serves it again.
	if next := win.next(); next > since {
		if err := e.repos.Settings.Set(ctx, watermarkPrefix+userID, strconv.FormatInt(next, 10)); err != nil {
			return fmt.Errorf("advance watermark: %w", err)
		}
	}
	return nil
}

// pullWindow tracks how far one cycle may advance the pull watermark.
// Applied and skipped records extend it; a failed record caps it just below
// that record's timestamp.
type pullWindow struct {
	maxApplied int64
	minFailed  int64 // zero when every record applied
}

func (w *pullWindow) advance(ts int64) {
	if ts > w.maxApplied {
		w.maxApplied = ts
	}
}

func (w *pullWindow) fail(ts int64) {
	if w.minFailed == 0 || ts < w.minFailed {
		w.minFailed = ts
	}
}

func (w *pullWindow) next() int64 {
	if w.minFailed != 0 && w.minFailed-1 < w.maxApplied {
		return w.minFailed - 1
	}
	return w.maxApplied
}

// pullKind fetches one kind's remote changes and applies them in a single
// transaction so a crash mid-apply cannot leave referencing records pointing
// at state from two different pulls.
func pullKind[T any](ctx context.Context, e *Engine, kind models.Kind, userID string, since int64,
	pull func(context.Context, string, int64) ([]T, error),
	meta func(*T) *models.SyncMeta,
	apply func(context.Context, *repositories.Bundle, *T) error,
	res *Result, win *pullWindow,
) error {
	records, err := pull(ctx, userID, since)
	if err != nil {
		return &PullError{Kind: kind, Err: err}
	}
	if len(records) == 0 {
		return nil
	}

	// Counts and window movement are buffered until the transaction commits
	// so a rollback cannot report discarded work.
	var applied int
	var recordErrs []error
	var kindWin pullWindow

	err = dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txRepos := repositories.New(tx, e.cipher)
		for i := range records {
			rec := &records[i]
			m := meta(rec)

			local, err := localMeta(ctx, tx, kind, m.ID)
			if err != nil {
				recordErrs = append(recordErrs, &PullError{Kind: kind, ID: m.ID, Err: err})
				kindWin.fail(m.UpdatedAt)
				continue
			}
			// Last writer wins: a newer unpushed local edit survives the
			// pull and stays queued for the next push.
			if local != nil && local.dirty() && local.updatedAt > m.UpdatedAt {
				kindWin.advance(m.UpdatedAt)
				continue
			}

			if err := apply(ctx, txRepos, rec); err != nil {
				recordErrs = append(recordErrs, &PullError{Kind: kind, ID: m.ID, Err: err})
				kindWin.fail(m.UpdatedAt)
				continue
			}
			applied++
			kindWin.advance(m.UpdatedAt)
		}
		return nil
	})
	if err != nil {
		return &PullError{Kind: kind, Err: err}
	}

	res.Pulled[kind] += applied
	res.Errors = append(res.Errors, recordErrs...)
	win.advance(kindWin.maxApplied)
	if kindWin.minFailed != 0 {
		win.fail(kindWin.minFailed)
	}
	return nil
}

type rowMeta struct {
	updatedAt int64
	syncedAt  *int64
}

func (r *rowMeta) dirty() bool {
	return r.syncedAt == nil || *r.syncedAt < r.updatedAt
}

func localMeta(ctx context.Context, tx dbx.DBTX, kind models.Kind, id string) (*rowMeta, error) {
	var m rowMeta
	var syncedAt sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT updated_at, synced_at FROM `+string(kind)+` WHERE id = ?`, id).
		Scan(&m.updatedAt, &syncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbx.Storage("read local record", err)
	}
	if syncedAt.Valid {
		m.syncedAt = &syncedAt.Int64
	}
	return &m, nil
}

// watermark reads the per-user pull watermark. An absent key means a first
// pull; a read failure or corrupt value falls back to a full re-pull, which
// last-writer-wins makes safe.
func (e *Engine) watermark(ctx context.Context, userID string) int64 {
	v, err := e.repos.Settings.Get(ctx, watermarkPrefix+userID)
	if errors.Is(err, models.ErrNotFound) {
		return 0
	}
	if err != nil {
		e.log.Warn(ctx, "failed to read pull watermark, pulling full history", "error", err)
		return 0
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.log.Warn(ctx, "discarding corrupt pull watermark", "value", v, "error", err)
		return 0
	}
	return ts
}

// writeStatus records the last cycle outcome for the UI's passive status
// indicator. Best effort; sync never surfaces as a hard failure.
func (e *Engine) writeStatus(res *Result) {
	status := struct {
		Success    bool  `json:"success"`
		Pushed     int   `json:"pushed"`
		Pulled     int   `json:"pulled"`
		Errors     int   `json:"errors"`
		FinishedAt int64 `json:"finished_at"`
	}{
		Success:    res.Success,
		Pushed:     res.PushedTotal(),
		Pulled:     res.PulledTotal(),
		Errors:     len(res.Errors),
		FinishedAt: e.now(),
	}
	b, err := json.Marshal(status)
	if err != nil {
		return
	}
	// A fresh context: the cycle's may already be past its deadline.
	if err := e.repos.Settings.Set(context.Background(), statusKey, string(b)); err != nil {
		e.log.Warn(context.Background(), "failed to record sync status", "error", err)
	}
}

func clientMeta(c *models.Client) *models.SyncMeta     { return &c.SyncMeta }
func vehicleMeta(v *models.Vehicle) *models.SyncMeta   { return &v.SyncMeta }
func dealMeta(d *models.Deal) *models.SyncMeta         { return &d.SyncMeta }
func documentMeta(d *models.Document) *models.SyncMeta { return &d.SyncMeta }
