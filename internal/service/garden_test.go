package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/events"
	"github.com/sakif/garden-companion/internal/model"
	"github.com/sakif/garden-companion/internal/repository/sqlite"
)

// The garden tests run against the real SQLite store (in memory) and the
// in-process broker. The uniqueness constraint, cascade deletes and change
// notifications are exactly what these tests are about, and a fake would
// only restate them.

type gardenFixture struct {
	svc     *GardenService
	db      *sqlite.DB
	catalog *fakeCatalog
	clock   *testClock
	userID  string
}

var (
	monstera = model.Plant{ID: 10, CommonName: "Swiss cheese plant", Watering: "Average"}
	cactus   = model.Plant{ID: 11, CommonName: "Barrel cactus", Watering: "Minimum"}
	fern     = model.Plant{ID: 12, CommonName: "Boston fern", Watering: "Frequent"}
)

func newGardenFixture(t *testing.T) *gardenFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broker := events.NewMemoryBroker(events.DefaultBufferSize, logger, nil)
	t.Cleanup(func() { broker.Close() })

	db, err := sqlite.New(":memory:", sqlite.WithNotifier(broker), sqlite.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	user := &model.User{Email: "gardener@example.com"}
	require.NoError(t, db.Users().Create(context.Background(), user))

	clock := newTestClock()
	catalog := newFakeCatalog(monstera, cactus, fern)
	plants := NewPlantService(db.Plants(), catalog, PlantOptions{Now: clock.now})

	return &gardenFixture{
		svc:     NewGardenService(db.Garden(), plants, broker, clock.now, logger),
		db:      db,
		catalog: catalog,
		clock:   clock,
		userID:  user.ID,
	}
}

// =========================================================================
// AddPlant
// =========================================================================

func TestAddPlant(t *testing.T) {
	f := newGardenFixture(t)

	entry, created, err := f.svc.AddPlant(context.Background(), f.userID, monstera.ID, AddPlantInput{Nickname: "  Monty "})
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, "Monty", entry.UserPlant.Nickname)
	assert.Equal(t, "Swiss cheese plant", entry.Plant.CommonName)
	assert.True(t, entry.UserPlant.DateAdded.Equal(f.clock.t))
}

func TestAddPlant_DuplicateCollapses(t *testing.T) {
	f := newGardenFixture(t)
	ctx := context.Background()

	first, created, err := f.svc.AddPlant(ctx, f.userID, monstera.ID, AddPlantInput{})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := f.svc.AddPlant(ctx, f.userID, monstera.ID, AddPlantInput{Nickname: "again"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.UserPlant.ID, second.UserPlant.ID)

	garden, err := f.svc.List(ctx, f.userID)
	require.NoError(t, err)
	assert.Len(t, garden, 1)
}

func TestAddPlant_UnknownPlant(t *testing.T) {
	f := newGardenFixture(t)

	_, _, err := f.svc.AddPlant(context.Background(), f.userID, 404, AddPlantInput{})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAddPlant_RequiresUser(t *testing.T) {
	f := newGardenFixture(t)

	_, _, err := f.svc.AddPlant(context.Background(), "", monstera.ID, AddPlantInput{})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

// =========================================================================
// List and Watch
// =========================================================================

func TestList_NewestFirst(t *testing.T) {
	f := newGardenFixture(t)
	ctx := context.Background()

	for _, id := range []int64{monstera.ID, cactus.ID, fern.ID} {
		_, _, err := f.svc.AddPlant(ctx, f.userID, id, AddPlantInput{})
		require.NoError(t, err)
		f.clock.advance(time.Minute)
	}

	garden, err := f.svc.List(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, garden, 3)
	assert.Equal(t, fern.ID, garden[0].Plant.ID)
	assert.Equal(t, monstera.ID, garden[2].Plant.ID)

	// Joining reuses the cached catalog rows: one fetch per plant, ever.
	assert.Equal(t, 3, f.catalog.detailHits)
}

func receive(t *testing.T, ch <-chan []model.GardenEntry) []model.GardenEntry {
	t.Helper()
	select {
	case entries, ok := <-ch:
		require.True(t, ok, "watch channel closed unexpectedly")
		return entries
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for garden update")
		return nil
	}
}

func TestWatch(t *testing.T) {
	f := newGardenFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := f.svc.Watch(ctx, f.userID)
	require.NoError(t, err)

	assert.Empty(t, receive(t, ch), "initial snapshot of an empty garden")

	entry, _, err := f.svc.AddPlant(context.Background(), f.userID, cactus.ID, AddPlantInput{})
	require.NoError(t, err)
	got := receive(t, ch)
	require.Len(t, got, 1)
	assert.Equal(t, cactus.ID, got[0].Plant.ID)

	require.NoError(t, f.svc.RecordWatering(context.Background(), f.userID, entry.UserPlant.ID))
	got = receive(t, ch)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].UserPlant.LastWatered)

	require.NoError(t, f.svc.RemovePlant(context.Background(), f.userID, entry.UserPlant.ID))
	assert.Empty(t, receive(t, ch))
}

func TestWatch_OtherUsersChangesIgnored(t *testing.T) {
	f := newGardenFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	other := &model.User{Email: "neighbour@example.com"}
	require.NoError(t, f.db.Users().Create(context.Background(), other))

	ch, err := f.svc.Watch(ctx, f.userID)
	require.NoError(t, err)
	receive(t, ch)

	_, _, err = f.svc.AddPlant(context.Background(), other.ID, fern.ID, AddPlantInput{})
	require.NoError(t, err)

	select {
	case got := <-ch:
		t.Fatalf("unexpected update for another user's garden: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatch_ClosesOnCancel(t *testing.T) {
	f := newGardenFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := f.svc.Watch(ctx, f.userID)
	require.NoError(t, err)
	receive(t, ch)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}

func TestWatch_CatalogClearNotifies(t *testing.T) {
	f := newGardenFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _, err := f.svc.AddPlant(context.Background(), f.userID, fern.ID, AddPlantInput{})
	require.NoError(t, err)

	ch, err := f.svc.Watch(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, receive(t, ch), 1)

	_, err = f.db.Plants().DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, receive(t, ch))
}

// =========================================================================
// Care actions
// =========================================================================

func TestRecordWatering_Missing(t *testing.T) {
	f := newGardenFixture(t)

	err := f.svc.RecordWatering(context.Background(), f.userID, "does-not-exist")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRecordFertilizing(t *testing.T) {
	f := newGardenFixture(t)
	ctx := context.Background()

	entry, _, err := f.svc.AddPlant(ctx, f.userID, fern.ID, AddPlantInput{})
	require.NoError(t, err)
	f.clock.advance(2 * time.Hour)

	require.NoError(t, f.svc.RecordFertilizing(ctx, f.userID, entry.UserPlant.ID))

	garden, err := f.svc.List(ctx, f.userID)
	require.NoError(t, err)
	require.NotNil(t, garden[0].UserPlant.LastFertilized)
	assert.True(t, garden[0].UserPlant.LastFertilized.Equal(f.clock.t))
}

func TestUpdateDetails(t *testing.T) {
	f := newGardenFixture(t)
	ctx := context.Background()

	entry, _, err := f.svc.AddPlant(ctx, f.userID, fern.ID, AddPlantInput{Nickname: "Fernando"})
	require.NoError(t, err)

	notes := "bathroom shelf"
	up, err := f.svc.UpdateDetails(ctx, f.userID, entry.UserPlant.ID, UpdateInput{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "Fernando", up.Nickname, "nil fields stay unchanged")
	assert.Equal(t, "bathroom shelf", up.Notes)

	future := f.clock.t.Add(48 * time.Hour)
	_, err = f.svc.UpdateDetails(ctx, f.userID, entry.UserPlant.ID, UpdateInput{PlantingDate: &future})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.UpdateDetails(ctx, "someone-else", entry.UserPlant.ID, UpdateInput{Notes: &notes})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRemovePlant_Idempotent(t *testing.T) {
	f := newGardenFixture(t)
	ctx := context.Background()

	entry, _, err := f.svc.AddPlant(ctx, f.userID, monstera.ID, AddPlantInput{})
	require.NoError(t, err)

	require.NoError(t, f.svc.RemovePlant(ctx, f.userID, entry.UserPlant.ID))
	// Removing it again still reports success.
	require.NoError(t, f.svc.RemovePlant(ctx, f.userID, entry.UserPlant.ID))

	garden, err := f.svc.List(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, garden)
}

// =========================================================================
// Tasks
// =========================================================================

func TestTasks(t *testing.T) {
	f := newGardenFixture(t)
	ctx := context.Background()

	// Fern (Frequent, every 2 days) added 10 days ago and never watered:
	// past the new-plant window and fully overdue.
	_, _, err := f.svc.AddPlant(ctx, f.userID, fern.ID, AddPlantInput{})
	require.NoError(t, err)
	f.clock.advance(10 * 24 * time.Hour)

	// Cactus added just now: a new plant needing its first watering.
	_, _, err = f.svc.AddPlant(ctx, f.userID, cactus.ID, AddPlantInput{Nickname: "Prickles"})
	require.NoError(t, err)

	tasks, err := f.svc.Tasks(ctx, f.userID, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, 1, task.Priority)
	}
	kinds := map[string]model.TaskKind{tasks[0].Name: tasks[0].Kind, tasks[1].Name: tasks[1].Kind}
	assert.Equal(t, model.TaskWaterOverdue, kinds["Boston fern"])
	assert.Equal(t, model.TaskWaterFirst, kinds["Prickles"])

	top, err := f.svc.Tasks(ctx, f.userID, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}
