package stores

import (
	"context"
	"fmt"

	"github.com/twigapp/twig/internal/core/sync"
	"github.com/twigapp/twig/internal/data/db"
)

// StateStore persists sync state in the single-row sync_state table.
type StateStore struct {
	db *db.DB
}

// NewStateStore creates a new SQLite-backed sync state store.
func NewStateStore(db *db.DB) *StateStore {
	return &StateStore{db: db}
}

// Load returns the persisted sync state.
func (s *StateStore) Load(ctx context.Context) (sync.PersistedState, error) {
	row, err := s.db.Queries().GetSyncState(ctx)
	if err != nil {
		return sync.PersistedState{}, fmt.Errorf("failed to load sync state: %w", err)
	}
	return sync.PersistedState{
		ChangeToken:  row.ChangeToken,
		Enabled:      row.Enabled,
		ActiveRootID: row.ActiveRootID,
	}, nil
}

// SetChangeToken stores the remote change cursor. An empty token means "never
// synced" and forces the next resync to be full.
func (s *StateStore) SetChangeToken(ctx context.Context, token string) error {
	if err := s.db.Queries().SetChangeToken(ctx, token); err != nil {
		return fmt.Errorf("failed to store change token: %w", err)
	}
	return nil
}

// SetEnabled stores the user's sync intention.
func (s *StateStore) SetEnabled(ctx context.Context, enabled bool) error {
	if err := s.db.Queries().SetSyncEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("failed to store sync intention: %w", err)
	}
	return nil
}

// SetActiveRootID stores the id of the currently-active local root.
func (s *StateStore) SetActiveRootID(ctx context.Context, id string) error {
	if err := s.db.Queries().SetActiveRootID(ctx, id); err != nil {
		return fmt.Errorf("failed to store active root id: %w", err)
	}
	return nil
}
