package jsonfile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twigapp/twig/internal/core/outline"
)

func TestUndoStore_RoundTrip(t *testing.T) {
	store, err := NewUndoStore(t.TempDir())
	require.NoError(t, err)

	batches := []outline.RemovalBatch{
		{
			ParentID: "root",
			Position: 1,
			Records: []outline.Record{
				{ID: "a", Text: "alpha", State: outline.StateDone, Tag: 2},
				{ID: "a1", ParentID: "a", Position: 0, Text: "child", Tag: outline.TagNone},
			},
		},
	}
	require.NoError(t, store.Save(batches))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, batches, got)
}

func TestUndoStore_MissingFileReadsEmpty(t *testing.T) {
	store, err := NewUndoStore(t.TempDir())
	require.NoError(t, err)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUndoStore_CapsStack(t *testing.T) {
	store, err := NewUndoStore(t.TempDir())
	require.NoError(t, err)

	batches := make([]outline.RemovalBatch, maxUndoBatches+10)
	for i := range batches {
		batches[i] = outline.RemovalBatch{
			ParentID: "root",
			Records:  []outline.Record{{ID: fmt.Sprintf("r%d", i), Tag: outline.TagNone}},
		}
	}
	require.NoError(t, store.Save(batches))

	got, err := store.Load()
	require.NoError(t, err)
	require.Len(t, got, maxUndoBatches)

	// The newest batches survive; the oldest fall off.
	assert.Equal(t, "r10", got[0].Records[0].ID)
	assert.Equal(t, fmt.Sprintf("r%d", maxUndoBatches+9), got[len(got)-1].Records[0].ID)
}

func TestUndoStore_SaveEmptyClears(t *testing.T) {
	store, err := NewUndoStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save([]outline.RemovalBatch{
		{ParentID: "root", Records: []outline.Record{{ID: "a", Tag: outline.TagNone}}},
	}))
	require.NoError(t, store.Save(nil))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}
