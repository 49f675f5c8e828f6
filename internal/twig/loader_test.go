package twig

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twigapp/twig/internal/core/outline"
	"github.com/twigapp/twig/internal/core/sync"
)

// memState is an in-memory stand-in for the SQLite sync state store.
type memState struct {
	state sync.PersistedState
}

func (m *memState) Load(ctx context.Context) (sync.PersistedState, error) { return m.state, nil }

func (m *memState) SetChangeToken(ctx context.Context, token string) error {
	m.state.ChangeToken = token
	return nil
}

func (m *memState) SetEnabled(ctx context.Context, enabled bool) error {
	m.state.Enabled = enabled
	return nil
}

func (m *memState) SetActiveRootID(ctx context.Context, id string) error {
	m.state.ActiveRootID = id
	return nil
}

func TestLoadOutline_EmptyStoreCreatesRoot(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	state := &memState{}

	root, index, err := LoadOutline(ctx, records, state, zerolog.Nop())
	require.NoError(t, err)
	defer index.Close()

	assert.Equal(t, defaultRootText, root.Data.Text)
	assert.Zero(t, root.ChildCount())

	// The new root is persisted and marked active.
	rec, ok := records.get(root.ID)
	require.True(t, ok)
	assert.Equal(t, defaultRootText, rec.Text)
	assert.Equal(t, root.ID, state.state.ActiveRootID)
}

func TestLoadOutline_RebuildsStoredTree(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	require.NoError(t, records.Upsert(ctx,
		outline.Record{ID: "root", Text: "Home", Tag: outline.TagNone},
		outline.Record{ID: "a", ParentID: "root", Position: 0, Text: "alpha", Tag: outline.TagNone},
		outline.Record{ID: "b", ParentID: "root", Position: 1, Text: "beta", Tag: outline.TagNone},
		outline.Record{ID: "a1", ParentID: "a", Position: 0, Text: "nested", Tag: outline.TagNone},
	))
	state := &memState{state: sync.PersistedState{ActiveRootID: "root"}}

	root, index, err := LoadOutline(ctx, records, state, zerolog.Nop())
	require.NoError(t, err)
	defer index.Close()

	assert.Equal(t, "root", root.ID)
	assert.Equal(t, []string{"a", "b"}, childIDs(root))
	require.NotNil(t, index.Lookup("a1"))
	assert.Equal(t, "nested", index.Lookup("a1").Data.Text)
}

func TestLoadOutline_AdoptsExtraRoots(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	require.NoError(t, records.Upsert(ctx,
		outline.Record{ID: "main", Text: "Home", Tag: outline.TagNone},
		outline.Record{ID: "m1", ParentID: "main", Position: 0, Tag: outline.TagNone},
		outline.Record{ID: "stray", Text: "orphan root", Tag: outline.TagNone},
	))
	state := &memState{state: sync.PersistedState{ActiveRootID: "main"}}

	root, index, err := LoadOutline(ctx, records, state, zerolog.Nop())
	require.NoError(t, err)
	defer index.Close()

	assert.Equal(t, "main", root.ID)

	stray := index.Lookup("stray")
	require.NotNil(t, stray)
	assert.Equal(t, root, stray.Parent())

	// The adoption is persisted so the next load is clean.
	rec, ok := records.get("stray")
	require.True(t, ok)
	assert.Equal(t, "main", rec.ParentID)
}

func TestLoadOutline_AdoptsDetachedSubtree(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	require.NoError(t, records.Upsert(ctx,
		outline.Record{ID: "root", Text: "Home", Tag: outline.TagNone},
		outline.Record{ID: "x", ParentID: "ghost", Position: 0, Text: "lost", Tag: outline.TagNone},
		outline.Record{ID: "x1", ParentID: "x", Position: 0, Text: "lost child", Tag: outline.TagNone},
	))
	state := &memState{state: sync.PersistedState{ActiveRootID: "root"}}

	root, index, err := LoadOutline(ctx, records, state, zerolog.Nop())
	require.NoError(t, err)
	defer index.Close()

	x := index.Lookup("x")
	require.NotNil(t, x)
	assert.Equal(t, root, x.Parent())
	require.NotNil(t, index.Lookup("x1"))
	assert.Equal(t, x, index.Lookup("x1").Parent())

	rec, ok := records.get("x")
	require.True(t, ok)
	assert.Equal(t, "root", rec.ParentID)
}

func TestLoadOutline_ActiveRootIDWinsOverSize(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	require.NoError(t, records.Upsert(ctx,
		outline.Record{ID: "small", Text: "chosen", Tag: outline.TagNone},
		outline.Record{ID: "big", Text: "big", Tag: outline.TagNone},
		outline.Record{ID: "b1", ParentID: "big", Position: 0, Tag: outline.TagNone},
		outline.Record{ID: "b2", ParentID: "big", Position: 1, Tag: outline.TagNone},
	))
	state := &memState{state: sync.PersistedState{ActiveRootID: "small"}}

	root, index, err := LoadOutline(ctx, records, state, zerolog.Nop())
	require.NoError(t, err)
	defer index.Close()

	assert.Equal(t, "small", root.ID)
	big := index.Lookup("big")
	require.NotNil(t, big)
	assert.Equal(t, root, big.Parent())
}

func TestLoadOutline_AllRecordsBrokenGetsFreshRoot(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	require.NoError(t, records.Upsert(ctx,
		outline.Record{ID: "x", ParentID: "missing", Tag: outline.TagNone},
		outline.Record{ID: "y", ParentID: "also-missing", Tag: outline.TagNone},
	))
	state := &memState{}

	root, index, err := LoadOutline(ctx, records, state, zerolog.Nop())
	require.NoError(t, err)
	defer index.Close()

	assert.Equal(t, defaultRootText, root.Data.Text)
	assert.NotNil(t, index.Lookup("x"))
	assert.NotNil(t, index.Lookup("y"))
	assert.Equal(t, root.ID, state.state.ActiveRootID)
}
