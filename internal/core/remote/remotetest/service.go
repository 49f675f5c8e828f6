// Package remotetest provides an in-memory remote.Service with real
// optimistic-concurrency semantics: per-record version counters, a change
// journal addressed by opaque tokens, and knobs to simulate transport loss and
// account problems.
package remotetest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/twigapp/twig/internal/core/outline"
	"github.com/twigapp/twig/internal/core/remote"
)

type journalEntry struct {
	seq     int
	id      string
	deleted bool
}

// Service is an in-memory remote record store. Safe for concurrent use.
type Service struct {
	mu       sync.Mutex
	records  map[string]outline.Record // Version holds the current counter
	history  map[string]map[string]outline.Record
	journal  []journalEntry
	seq      int
	versions int

	offline bool
	account remote.AccountStatus
}

var _ remote.Service = (*Service)(nil)

// New creates an empty service with an available account.
func New() *Service {
	return &Service{
		records: make(map[string]outline.Record),
		history: make(map[string]map[string]outline.Record),
		account: remote.AccountAvailable,
	}
}

// SetOffline makes every call fail with a TransportError until reset.
func (s *Service) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// SetAccountStatus controls what EnsureAccountAccess reports.
func (s *Service) SetAccountStatus(status remote.AccountStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = status
}

// Seed installs records server-side without going through Save, assigning
// fresh versions and journal entries. Returns the stored copies.
func (s *Service) Seed(records ...outline.Record) []outline.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]outline.Record, 0, len(records))
	for _, rec := range records {
		out = append(out, s.store(rec))
	}
	return out
}

// DeleteServerSide removes a record as if another device deleted it.
func (s *Service) DeleteServerSide(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return
	}
	delete(s.records, id)
	s.seq++
	s.journal = append(s.journal, journalEntry{seq: s.seq, id: id, deleted: true})
}

// Record returns the current server copy of id.
func (s *Service) Record(id string) (outline.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Len returns the number of stored records.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Save applies optimistic concurrency per record: a client version that does
// not match the stored version yields a SaveConflict carrying both copies and,
// when the client version exists in history, the common ancestor.
func (s *Service) Save(ctx context.Context, records []outline.Record) (remote.SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offline {
		return remote.SaveResult{}, &remote.TransportError{Op: "save", Err: context.DeadlineExceeded}
	}

	var result remote.SaveResult
	for _, rec := range records {
		current, exists := s.records[rec.ID]
		if exists && rec.Version != current.Version {
			conflict := remote.SaveConflict{Client: rec, Server: current}
			if ancestors, ok := s.history[rec.ID]; ok {
				if ancestor, ok := ancestors[rec.Version]; ok && rec.Version != "" {
					a := ancestor
					conflict.Ancestor = &a
				}
			}
			result.Conflicts = append(result.Conflicts, conflict)
			continue
		}
		result.Saved = append(result.Saved, s.store(rec))
	}
	return result, nil
}

// Delete removes records by id. Deleting an unknown id succeeds (idempotent).
func (s *Service) Delete(ctx context.Context, ids []string) (remote.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offline {
		return remote.DeleteResult{}, &remote.TransportError{Op: "delete", Err: context.DeadlineExceeded}
	}

	result := remote.DeleteResult{FailedIDs: map[string]error{}}
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			s.seq++
			s.journal = append(s.journal, journalEntry{seq: s.seq, id: id, deleted: true})
		}
		result.DeletedIDs = append(result.DeletedIDs, id)
	}
	return result, nil
}

// FetchChanges replays the journal after the given token. An empty token
// returns the full current record set with no historical deletions.
func (s *Service) FetchChanges(ctx context.Context, token remote.ChangeToken) (remote.FetchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offline {
		return remote.FetchResult{}, &remote.TransportError{Op: "fetch", Err: context.DeadlineExceeded}
	}

	result := remote.FetchResult{Token: remote.ChangeToken(strconv.Itoa(s.seq))}

	if token == "" {
		for _, rec := range s.records {
			result.Changed = append(result.Changed, rec)
		}
		return result, nil
	}

	since, err := strconv.Atoi(string(token))
	if err != nil {
		return remote.FetchResult{}, fmt.Errorf("remotetest: bad token %q", token)
	}

	changed := map[string]bool{}
	deleted := map[string]bool{}
	for _, e := range s.journal {
		if e.seq <= since {
			continue
		}
		if e.deleted {
			deleted[e.id] = true
			delete(changed, e.id)
		} else {
			changed[e.id] = true
			delete(deleted, e.id)
		}
	}

	for id := range changed {
		if rec, ok := s.records[id]; ok {
			result.Changed = append(result.Changed, rec)
		}
	}
	for id := range deleted {
		result.DeletedIDs = append(result.DeletedIDs, id)
	}
	return result, nil
}

// EnsureAccountAccess reports the configured account status.
func (s *Service) EnsureAccountAccess(ctx context.Context) (remote.AccountStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return remote.AccountNotDetermined, &remote.TransportError{Op: "account", Err: context.DeadlineExceeded}
	}
	return s.account, nil
}

// store writes rec with a fresh version and journal entry. Caller holds mu.
func (s *Service) store(rec outline.Record) outline.Record {
	if prev, ok := s.records[rec.ID]; ok {
		if s.history[rec.ID] == nil {
			s.history[rec.ID] = make(map[string]outline.Record)
		}
		s.history[rec.ID][prev.Version] = prev
	}
	s.versions++
	rec.Version = "v" + strconv.Itoa(s.versions)
	s.records[rec.ID] = rec
	s.seq++
	s.journal = append(s.journal, journalEntry{seq: s.seq, id: rec.ID})
	return rec
}
