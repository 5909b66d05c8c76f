package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealersoft/dealerdesk/internal/desktop/models"
	"github.com/dealersoft/dealerdesk/internal/desktop/repositories"
	"github.com/dealersoft/dealerdesk/internal/desktop/store"
	"github.com/dealersoft/dealerdesk/internal/logging"
)

type fakeRemote struct {
	mu sync.Mutex

	pushCalls map[models.Kind]int
	pushedIDs map[models.Kind][]string
	pullCalls map[models.Kind]int
	pullSince map[models.Kind][]int64

	clientsToPull   []models.Client
	vehiclesToPull  []models.Vehicle
	dealsToPull     []models.Deal
	documentsToPull []models.Document

	// ackHook, when set, overrides the default acknowledge-everything push.
	ackHook func(kind models.Kind, ids []string) ([]Ack, error)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		pushCalls: map[models.Kind]int{},
		pushedIDs: map[models.Kind][]string{},
		pullCalls: map[models.Kind]int{},
		pullSince: map[models.Kind][]int64{},
	}
}

func (f *fakeRemote) push(kind models.Kind, ids []string) ([]Ack, error) {
	f.mu.Lock()
	f.pushCalls[kind]++
	f.pushedIDs[kind] = append(f.pushedIDs[kind], ids...)
	hook := f.ackHook
	f.mu.Unlock()

	if hook != nil {
		return hook(kind, ids)
	}
	acks := make([]Ack, len(ids))
	for i, id := range ids {
		acks[i] = Ack{ID: id}
	}
	return acks, nil
}

func (f *fakeRemote) pulled(kind models.Kind, since int64) {
	f.mu.Lock()
	f.pullCalls[kind]++
	f.pullSince[kind] = append(f.pullSince[kind], since)
	f.mu.Unlock()
}

func (f *fakeRemote) PushClients(_ context.Context, _ string, records []models.Client) ([]Ack, error) {
	return f.push(models.KindClient, ids(records, clientMeta))
}

func (f *fakeRemote) PushVehicles(_ context.Context, _ string, records []models.Vehicle) ([]Ack, error) {
	return f.push(models.KindVehicle, ids(records, vehicleMeta))
}

func (f *fakeRemote) PushDeals(_ context.Context, _ string, records []models.Deal) ([]Ack, error) {
	return f.push(models.KindDeal, ids(records, dealMeta))
}

func (f *fakeRemote) PushDocuments(_ context.Context, _ string, records []models.Document) ([]Ack, error) {
	return f.push(models.KindDocument, ids(records, documentMeta))
}

func (f *fakeRemote) PullClients(_ context.Context, _ string, since int64) ([]models.Client, error) {
	f.pulled(models.KindClient, since)
	return f.clientsToPull, nil
}

func (f *fakeRemote) PullVehicles(_ context.Context, _ string, since int64) ([]models.Vehicle, error) {
	f.pulled(models.KindVehicle, since)
	return f.vehiclesToPull, nil
}

func (f *fakeRemote) PullDeals(_ context.Context, _ string, since int64) ([]models.Deal, error) {
	f.pulled(models.KindDeal, since)
	return f.dealsToPull, nil
}

func (f *fakeRemote) PullDocuments(_ context.Context, _ string, since int64) ([]models.Document, error) {
	f.pulled(models.KindDocument, since)
	return f.documentsToPull, nil
}

func (f *fakeRemote) totalPushCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.pushCalls {
		n += c
	}
	return n
}

func (f *fakeRemote) totalPullCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.pullCalls {
		n += c
	}
	return n
}

func ids[T any](records []T, meta func(*T) *models.SyncMeta) []string {
	out := make([]string, len(records))
	for i := range records {
		out[i] = meta(&records[i]).ID
	}
	return out
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func setupEngine(t *testing.T) (*Engine, *repositories.Bundle, *fakeRemote) {
	t.Helper()
	db, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repos := repositories.New(db, nil)
	remote := newFakeRemote()
	return NewEngine(db, repos, remote, nil, testLogger()), repos, remote
}

func TestPerformSync_NoUser(t *testing.T) {
	e, _, remote := setupEngine(t)

	res, err := e.PerformSync(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, res.PushedTotal())
	assert.Zero(t, res.PulledTotal())
	assert.Zero(t, remote.totalPushCalls())
	assert.Zero(t, remote.totalPullCalls())
}

func TestPerformSync_PushNewClientOnce(t *testing.T) {
	e, repos, remote := setupEngine(t)
	ctx := context.Background()

	c := &models.Client{FirstName: "Maria", LastName: "Santos"}
	require.NoError(t, repos.Clients.Create(ctx, c))
	pushedAt := c.UpdatedAt

	res, err := e.PerformSync(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Pushed[models.KindClient])

	synced, err := repos.Clients.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, synced.SyncedAt)
	assert.Equal(t, pushedAt, *synced.SyncedAt)
	assert.False(t, synced.Dirty())

	// No local changes: the next cycle pushes nothing.
	first := remote.totalPushCalls()
	res, err = e.PerformSync(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, res.PushedTotal())
	assert.Equal(t, first, remote.totalPushCalls())
}

func TestPerformSync_PullNewVehicleAdvancesWatermark(t *testing.T) {
	e, repos, remote := setupEngine(t)
	ctx := context.Background()

	v := models.Vehicle{
		VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord",
		Status: models.VehicleAvailable,
	}
	v.ID = "v1"
	v.CreatedAt = 90
	v.UpdatedAt = 100
	remote.vehiclesToPull = []models.Vehicle{v}

	res, err := e.PerformSync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled[models.KindVehicle])

	got, err := repos.Vehicles.GetByID(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, got.SyncedAt)
	assert.Equal(t, int64(100), *got.SyncedAt)
	assert.False(t, got.Dirty())

	wm, err := repos.Settings.Get(ctx, "last_pulled_at:u1")
	require.NoError(t, err)
	assert.Equal(t, "100", wm)

	// A fresh engine over the same database resumes from the watermark.
	e2 := NewEngine(e.db, repos, remote, nil, testLogger())
	_, err = e2.PerformSync(ctx, "u1")
	require.NoError(t, err)
	since := remote.pullSince[models.KindVehicle]
	require.Len(t, since, 2)
	assert.Equal(t, int64(0), since[0])
	assert.Equal(t, int64(100), since[1])
}

func TestPerformSync_LocalNewerEditSurvivesPull(t *testing.T) {
	e, repos, remote := setupEngine(t)
	ctx := context.Background()

	c := &models.Client{FirstName: "Maria", LastName: "Santos"}
	require.NoError(t, repos.Clients.Create(ctx, c))
	v := &models.Vehicle{VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Status: models.VehicleAvailable}
	require.NoError(t, repos.Vehicles.Create(ctx, v))
	d := &models.Deal{
		Type: models.DealCash, ClientID: c.ID, VehicleID: v.ID,
		Status: models.DealDraft, TotalAmount: 20000,
	}
	require.NoError(t, repos.Deals.Create(ctx, d))

	// The remote rejects the deal so it stays dirty through the push phase,
	// then serves a stale copy of it during the pull.
	remote.ackHook = func(kind models.Kind, recordIDs []string) ([]Ack, error) {
		acks := make([]Ack, len(recordIDs))
		for i, id := range recordIDs {
			acks[i] = Ack{ID: id}
			if kind == models.KindDeal {
				acks[i].Err = errors.New("remote validation failed")
			}
		}
		return acks, nil
	}
	stale := *d
	stale.TotalAmount = 11111
	stale.UpdatedAt = 150
	stale.CreatedAt = 150
	remote.dealsToPull = []models.Deal{stale}

	res, err := e.PerformSync(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, res.Pulled[models.KindDeal])
	assert.NotEmpty(t, res.Errors)

	got, err := repos.Deals.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 20000.0, got.TotalAmount)
	assert.True(t, got.Dirty())
}

func TestPerformSync_RemoteWinsWhenLocalClean(t *testing.T) {
	e, repos, remote := setupEngine(t)
	ctx := context.Background()

	c := &models.Client{FirstName: "Maria", LastName: "Santos"}
	require.NoError(t, repos.Clients.Create(ctx, c))

	res, err := e.PerformSync(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, res.Pushed[models.KindClient])

	newer, err := repos.Clients.GetByID(ctx, c.ID)
	require.NoError(t, err)
	newer.Phone = "555-0100"
	newer.UpdatedAt = newer.UpdatedAt + 5000
	newer.SyncedAt = nil
	remote.clientsToPull = []models.Client{*newer}

	_, err = e.PerformSync(ctx, "u1")
	require.NoError(t, err)

	got, err := repos.Clients.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "555-0100", got.Phone)
	assert.False(t, got.Dirty())
}

func TestPerformSync_CanonicalIDRemapFollowsReferences(t *testing.T) {
	e, repos, remote := setupEngine(t)
	ctx := context.Background()

	c := &models.Client{FirstName: "Maria", LastName: "Santos"}
	require.NoError(t, repos.Clients.Create(ctx, c))
	v := &models.Vehicle{VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Status: models.VehicleAvailable}
	require.NoError(t, repos.Vehicles.Create(ctx, v))
	d := &models.Deal{Type: models.DealCash, ClientID: c.ID, VehicleID: v.ID, Status: models.DealDraft}
	require.NoError(t, repos.Deals.Create(ctx, d))

	remote.ackHook = func(kind models.Kind, recordIDs []string) ([]Ack, error) {
		acks := make([]Ack, len(recordIDs))
		for i, id := range recordIDs {
			acks[i] = Ack{ID: id}
			if kind == models.KindClient && id == c.ID {
				acks[i].CanonicalID = "srv-c1"
			}
		}
		return acks, nil
	}

	res, err := e.PerformSync(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Success)

	remapped, err := repos.Clients.GetByID(ctx, "srv-c1")
	require.NoError(t, err)
	assert.False(t, remapped.Dirty())
	_, err = repos.Clients.GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	deal, err := repos.Deals.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "srv-c1", deal.ClientID)
}

func TestPerformSync_TimeoutKeepsPartialProgress(t *testing.T) {
	e, repos, remote := setupEngine(t)
	ctx := context.Background()

	c := &models.Client{FirstName: "Maria", LastName: "Santos"}
	require.NoError(t, repos.Clients.Create(ctx, c))
	v := &models.Vehicle{VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Status: models.VehicleAvailable}
	require.NoError(t, repos.Vehicles.Create(ctx, v))

	var dealIDs []string
	for i := 0; i < 5; i++ {
		d := &models.Deal{Type: models.DealCash, ClientID: c.ID, VehicleID: v.ID, Status: models.DealDraft}
		require.NoError(t, repos.Deals.Create(ctx, d))
		dealIDs = append(dealIDs, d.ID)
	}

	// The budget expires while the deals batch is in flight: the remote
	// managed to accept 3 of 5 before the deadline.
	remote.ackHook = func(kind models.Kind, recordIDs []string) ([]Ack, error) {
		acks := make([]Ack, 0, len(recordIDs))
		for _, id := range recordIDs {
			acks = append(acks, Ack{ID: id})
		}
		if kind == models.KindDeal {
			return acks[:3], context.DeadlineExceeded
		}
		return acks, nil
	}

	res, err := e.PerformSync(ctx, "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Pushed[models.KindDeal])
	assert.Zero(t, remote.totalPullCalls())

	dirty, err := repos.Deals.GetDirty(ctx)
	require.NoError(t, err)
	assert.Len(t, dirty, 2)

	_, err = repos.Settings.Get(ctx, "last_pulled_at:u1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPerformSync_TombstonePushPurgesRecord(t *testing.T) {
	e, repos, remote := setupEngine(t)
	ctx := context.Background()

	c := &models.Client{FirstName: "Maria", LastName: "Santos"}
	require.NoError(t, repos.Clients.Create(ctx, c))
	_, err := e.PerformSync(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, repos.Clients.Delete(ctx, c.ID))
	dirty, err := repos.Clients.GetDirty(ctx)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	require.True(t, dirty[0].Deleted)

	res, err := e.PerformSync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed[models.KindClient])
	assert.Contains(t, remote.pushedIDs[models.KindClient], c.ID)

	dirty, err = repos.Clients.GetDirty(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestPerformSync_FailedApplyHoldsWatermark(t *testing.T) {
	e, repos, remote := setupEngine(t)
	ctx := context.Background()

	bad := models.Vehicle{VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Status: "teleporting"}
	bad.ID = "v-bad"
	bad.CreatedAt = 90
	bad.UpdatedAt = 100
	good := models.Vehicle{VIN: "4T1BF1FK5GU123456", Make: "Toyota", Model: "Camry", Status: models.VehicleAvailable}
	good.ID = "v-good"
	good.CreatedAt = 190
	good.UpdatedAt = 200
	remote.vehiclesToPull = []models.Vehicle{bad, good}

	res, err := e.PerformSync(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Pulled[models.KindVehicle])
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], models.ErrValidation)

	_, err = repos.Vehicles.GetByID(ctx, "v-good")
	require.NoError(t, err)

	// The watermark stops just short of the record that failed to apply,
	// even though a later record in the same window did apply.
	wm, err := repos.Settings.Get(ctx, "last_pulled_at:u1")
	require.NoError(t, err)
	assert.Equal(t, "99", wm)

	// The next cycle asks for the failed record again.
	remote.vehiclesToPull = nil
	_, err = e.PerformSync(ctx, "u1")
	require.NoError(t, err)
	since := remote.pullSince[models.KindVehicle]
	require.Len(t, since, 2)
	assert.Equal(t, int64(99), since[1])
}

func TestPerformSync_CorruptWatermarkFallsBackToFullPull(t *testing.T) {
	e, repos, remote := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, repos.Settings.Set(ctx, "last_pulled_at:u1", "not-a-timestamp"))

	v := models.Vehicle{VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Status: models.VehicleAvailable}
	v.ID = "v1"
	v.CreatedAt = 90
	v.UpdatedAt = 100
	remote.vehiclesToPull = []models.Vehicle{v}

	res, err := e.PerformSync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled[models.KindVehicle])
	assert.Equal(t, int64(0), remote.pullSince[models.KindVehicle][0])

	wm, err := repos.Settings.Get(ctx, "last_pulled_at:u1")
	require.NoError(t, err)
	assert.Equal(t, "100", wm)
}

func TestPullWindow_FailedRecordCapsAdvance(t *testing.T) {
	w := pullWindow{maxApplied: 50}
	w.advance(80)
	w.fail(100)
	w.advance(200)
	assert.Equal(t, int64(99), w.next())

	w = pullWindow{maxApplied: 50}
	w.advance(200)
	assert.Equal(t, int64(200), w.next())

	// A failure below the starting watermark never moves it forward.
	w = pullWindow{maxApplied: 50}
	w.fail(40)
	w.advance(200)
	assert.Equal(t, int64(39), w.next())
}
