package commands

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/twigapp/twig/internal/core/config"
	"github.com/twigapp/twig/internal/core/dialog"
	"github.com/twigapp/twig/internal/core/remote/remotetest"
	"github.com/twigapp/twig/internal/core/sync"
	"github.com/twigapp/twig/internal/data/db"
	"github.com/twigapp/twig/internal/data/jsonfile"
	"github.com/twigapp/twig/internal/data/stores"
	"github.com/twigapp/twig/internal/twig"
)

// newTestApp wires a full app over a temp directory and an in-memory remote.
func newTestApp(t *testing.T) *twig.App {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Remote.BaseURL = "http://sync.test.invalid"

	database, err := db.Open(dir, db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	recordStore := stores.NewRecordStore(database)
	stateStore := stores.NewStateStore(database)

	changeLogStore, err := jsonfile.NewChangeLogStore(cfg.ChangeLogDir())
	require.NoError(t, err)
	changeLog, err := sync.NewChangeLog(changeLogStore)
	require.NoError(t, err)

	undoStore, err := jsonfile.NewUndoStore(dir)
	require.NoError(t, err)

	root, index, err := twig.LoadOutline(ctx, recordStore, stateStore, zerolog.Nop())
	require.NoError(t, err)

	engine := sync.NewEngine(sync.Config{
		Remote:    remotetest.New(),
		Records:   recordStore,
		State:     stateStore,
		ChangeLog: changeLog,
		Resolver:  sync.NewResolver(dialog.Static{}, zerolog.Nop()),
		Asker:     dialog.Static{},
		Logger:    zerolog.Nop(),
	})
	t.Cleanup(engine.Close)
	require.NoError(t, engine.Start(ctx, root, index))

	svc := twig.NewOutlineService(engine.Root(), index, recordStore, engine, undoStore, zerolog.Nop())
	return twig.NewApp(svc, engine, &cfg, database, index)
}

func TestSyncCmd_EnableRefreshesServiceRoot(t *testing.T) {
	app := newTestApp(t)
	cmd := NewSyncCmd(&Flags{}, app)

	// Enable runs a full resync, which rebuilds the tree with fresh nodes.
	// The service must follow the engine to the new root.
	err := cmd.runEnable(context.Background(), &cli.Command{Writer: io.Discard})
	require.NoError(t, err)

	assert.Equal(t, sync.StateEnabledHasToken, app.Engine.State())
	assert.Same(t, app.Engine.Root(), app.Outline.Root())
}
