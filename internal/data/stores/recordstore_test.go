package stores

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twigapp/twig/internal/core/outline"
	"github.com/twigapp/twig/internal/data/db"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

// openTestDBAt opens a database in a caller-owned directory so tests can
// close and reopen it.
func openTestDBAt(t *testing.T, dir string) *db.DB {
	t.Helper()
	database, err := db.Open(dir, db.DefaultOpenOptions())
	require.NoError(t, err)
	return database
}

func newTestRecordStore(t *testing.T) *RecordStore {
	t.Helper()
	return NewRecordStore(newTestDB(t))
}

func TestRecordStore_UpsertAndLoadAll(t *testing.T) {
	ctx := context.Background()
	store := newTestRecordStore(t)

	recs := []outline.Record{
		{ID: "root", Text: "Home", Tag: outline.TagNone},
		{ID: "a", ParentID: "root", Position: 0, Text: "alpha", State: outline.StateDone, Tag: 3, Version: "v1"},
		{ID: "b", ParentID: "root", Position: 1, Text: "beta", Tag: outline.TagNone},
	}
	require.NoError(t, store.Upsert(ctx, recs...))

	got, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, recs, got)
}

func TestRecordStore_UpsertUpdatesExisting(t *testing.T) {
	ctx := context.Background()
	store := newTestRecordStore(t)

	require.NoError(t, store.Upsert(ctx, outline.Record{ID: "a", Text: "before", Version: "v1"}))
	require.NoError(t, store.Upsert(ctx, outline.Record{ID: "a", ParentID: "p", Position: 4, Text: "after", Version: "v2"}))

	got, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "after", got[0].Text)
	assert.Equal(t, "p", got[0].ParentID)
	assert.Equal(t, 4, got[0].Position)
	assert.Equal(t, "v2", got[0].Version)
}

func TestRecordStore_EmptyVersionKeepsStored(t *testing.T) {
	ctx := context.Background()
	store := newTestRecordStore(t)

	require.NoError(t, store.Upsert(ctx, outline.Record{ID: "a", Text: "synced", Version: "v5"}))

	// An edit saved without version metadata must not wipe the stored version.
	require.NoError(t, store.Upsert(ctx, outline.Record{ID: "a", Text: "edited"}))

	got, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "edited", got[0].Text)
	assert.Equal(t, "v5", got[0].Version)
}

func TestRecordStore_ReplaceAll(t *testing.T) {
	ctx := context.Background()
	store := newTestRecordStore(t)

	require.NoError(t, store.Upsert(ctx,
		outline.Record{ID: "old1", Tag: outline.TagNone},
		outline.Record{ID: "old2", Tag: outline.TagNone},
	))

	fresh := []outline.Record{
		{ID: "new1", Text: "one", Tag: outline.TagNone},
		{ID: "new2", ParentID: "new1", Text: "two", Tag: outline.TagNone},
	}
	require.NoError(t, store.ReplaceAll(ctx, fresh))

	got, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, fresh, got)
}

func TestRecordStore_ReplaceAllWithEmpty(t *testing.T) {
	ctx := context.Background()
	store := newTestRecordStore(t)

	require.NoError(t, store.Upsert(ctx, outline.Record{ID: "a", Tag: outline.TagNone}))
	require.NoError(t, store.ReplaceAll(ctx, nil))

	got, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecordStore_DeleteIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestRecordStore(t)

	require.NoError(t, store.Upsert(ctx,
		outline.Record{ID: "a", Tag: outline.TagNone},
		outline.Record{ID: "b", Tag: outline.TagNone},
		outline.Record{ID: "c", Tag: outline.TagNone},
	))

	require.NoError(t, store.DeleteIDs(ctx, "a", "c"))

	got, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestRecordStore_DeleteMissingIDIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newTestRecordStore(t)

	require.NoError(t, store.Upsert(ctx, outline.Record{ID: "a", Tag: outline.TagNone}))
	require.NoError(t, store.DeleteIDs(ctx, "ghost"))

	got, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRecordStore_LoadAllEmpty(t *testing.T) {
	store := newTestRecordStore(t)

	got, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
