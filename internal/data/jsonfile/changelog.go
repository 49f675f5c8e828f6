// Package jsonfile holds the small JSON-file persistence pieces: the offline
// change log's id sets and the data-directory watcher.
package jsonfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const (
	editedFile  = "edited.json"
	deletedFile = "deleted.json"
)

// ChangeLogStore persists the offline change log's two id sets as JSON string
// arrays under a dedicated directory. Writes are atomic (temp file + rename)
// so the log survives a crash between an offline edit and the next launch.
type ChangeLogStore struct {
	dir string
	mu  sync.Mutex
}

// NewChangeLogStore creates a store rooted at dir, creating it if needed.
func NewChangeLogStore(dir string) (*ChangeLogStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &ChangeLogStore{dir: dir}, nil
}

// Load reads both id sets. Missing files read as empty sets.
func (s *ChangeLogStore) Load() (edited, deleted []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	edited, err = s.loadSet(editedFile)
	if err != nil {
		return nil, nil, err
	}
	deleted, err = s.loadSet(deletedFile)
	if err != nil {
		return nil, nil, err
	}
	return edited, deleted, nil
}

// Save writes both id sets.
func (s *ChangeLogStore) Save(edited, deleted []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveSet(editedFile, edited); err != nil {
		return err
	}
	return s.saveSet(deletedFile, deleted)
}

func (s *ChangeLogStore) loadSet(name string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *ChangeLogStore) saveSet(name string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
