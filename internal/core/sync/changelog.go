// Package sync implements the synchronization engine: the offline change log,
// save-conflict resolution, and the resync state machine that reconciles the
// local outline with the remote record store.
package sync

import (
	"fmt"
	"sort"
	gosync "sync"
)

// ChangeLogStore persists the change log's two id sets. Implemented by
// jsonfile.ChangeLogStore.
type ChangeLogStore interface {
	Load() (edited, deleted []string, err error)
	Save(edited, deleted []string) error
}

// ChangeLog is the durable set of pending edits and deletions accumulated
// while the remote is unreachable or sync is disabled. The two sets are
// mutually exclusive; every mutation persists immediately so the log survives
// a crash between an offline edit and the next launch.
type ChangeLog struct {
	mu      gosync.Mutex
	store   ChangeLogStore
	edited  map[string]struct{}
	deleted map[string]struct{}
}

// NewChangeLog loads any persisted pending changes from store.
func NewChangeLog(store ChangeLogStore) (*ChangeLog, error) {
	edited, deleted, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load change log: %w", err)
	}

	l := &ChangeLog{
		store:   store,
		edited:  make(map[string]struct{}, len(edited)),
		deleted: make(map[string]struct{}, len(deleted)),
	}
	for _, id := range edited {
		l.edited[id] = struct{}{}
	}
	for _, id := range deleted {
		l.deleted[id] = struct{}{}
	}
	return l, nil
}

// RecordSaved journals a pending edit. A pending deletion for the same id is
// dropped.
func (l *ChangeLog) RecordSaved(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.deleted, id)
	l.edited[id] = struct{}{}
	return l.persist()
}

// RecordDeleted journals a pending deletion. A pending edit for the same id
// is dropped.
func (l *ChangeLog) RecordDeleted(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.edited, id)
	l.deleted[id] = struct{}{}
	return l.persist()
}

// HasChanges reports whether anything is pending.
func (l *ChangeLog) HasChanges() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.edited) > 0 || len(l.deleted) > 0
}

// IsEdited reports whether id has a pending edit.
func (l *ChangeLog) IsEdited(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.edited[id]
	return ok
}

// EditedIDs returns the pending edit ids, sorted.
func (l *ChangeLog) EditedIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedKeys(l.edited)
}

// DeletedIDs returns the pending deletion ids, sorted.
func (l *ChangeLog) DeletedIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedKeys(l.deleted)
}

// Clear drops all pending changes.
func (l *ChangeLog) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.edited = make(map[string]struct{})
	l.deleted = make(map[string]struct{})
	return l.persist()
}

// persist writes both sets. Caller holds the lock.
func (l *ChangeLog) persist() error {
	if err := l.store.Save(sortedKeys(l.edited), sortedKeys(l.deleted)); err != nil {
		return fmt.Errorf("persist change log: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
