package jsonfile

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const debounceDelay = 200 * time.Millisecond

// DataWatcher watches the record database file for writes made by another
// process (a second window or device agent rewriting the store) and invokes a
// reload callback after changes settle. Events are debounced because SQLite
// produces bursts of writes per transaction.
type DataWatcher struct {
	watcher *fsnotify.Watcher
	dbPath  string
	onWrite func()
	log     zerolog.Logger

	mu       sync.Mutex
	debounce *time.Timer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDataWatcher watches the directory containing dbPath and calls onWrite
// (from the watcher goroutine) when the database file changes.
func NewDataWatcher(dbPath string, onWrite func(), log zerolog.Logger) (*DataWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(dbPath)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &DataWatcher{
		watcher: watcher,
		dbPath:  dbPath,
		onWrite: onWrite,
		log:     log.With().Str("component", "data-watcher").Logger(),
		cancel:  cancel,
	}

	w.wg.Add(1)
	go w.run(ctx)

	return w, nil
}

// Close stops watching.
func (w *DataWatcher) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *DataWatcher) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			w.log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("file system event")
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

// matches accepts the database file and its WAL sidecar.
func (w *DataWatcher) matches(path string) bool {
	return path == w.dbPath || strings.TrimSuffix(path, "-wal") == w.dbPath
}

func (w *DataWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceDelay, w.onWrite)
}
