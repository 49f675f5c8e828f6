package jsonfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/twigapp/twig/internal/core/outline"
)

const undoFile = "undo.json"

// maxUndoBatches bounds the persisted undo stack. Older batches fall off the
// bottom.
const maxUndoBatches = 100

// UndoStore persists the stack of removed subtrees so a removal can be undone
// from a later invocation. Same atomic write discipline as the change log.
type UndoStore struct {
	dir string
	mu  sync.Mutex
}

// NewUndoStore creates a store rooted at dir, creating it if needed.
func NewUndoStore(dir string) (*UndoStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &UndoStore{dir: dir}, nil
}

// Load reads the persisted stack, oldest first. A missing file reads as empty.
func (s *UndoStore) Load() ([]outline.RemovalBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, undoFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var batches []outline.RemovalBatch
	if err := json.Unmarshal(data, &batches); err != nil {
		return nil, err
	}
	return batches, nil
}

// Save writes the whole stack, truncating to the newest batches when over the
// cap.
func (s *UndoStore) Save(batches []outline.RemovalBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batches == nil {
		batches = []outline.RemovalBatch{}
	}
	if len(batches) > maxUndoBatches {
		batches = batches[len(batches)-maxUndoBatches:]
	}
	data, err := json.MarshalIndent(batches, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(s.dir, undoFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
