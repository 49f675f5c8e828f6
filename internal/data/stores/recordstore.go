// Package stores implements the persistence interfaces the sync engine and
// commands consume, backed by SQLite.
package stores

import (
	"context"
	"fmt"

	"github.com/twigapp/twig/internal/core/outline"
	"github.com/twigapp/twig/internal/data/db"
)

// RecordStore persists the flat record set to disk; the durable source of
// truth when offline.
type RecordStore struct {
	db *db.DB
}

// NewRecordStore creates a new SQLite-backed record store.
func NewRecordStore(db *db.DB) *RecordStore {
	return &RecordStore{db: db}
}

// LoadAll returns every stored record.
func (s *RecordStore) LoadAll(ctx context.Context) ([]outline.Record, error) {
	rows, err := s.db.Queries().ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	records := make([]outline.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, rowToRecord(row))
	}
	return records, nil
}

// ReplaceAll atomically swaps the stored record set for the given one.
func (s *RecordStore) ReplaceAll(ctx context.Context, records []outline.Record) error {
	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		if err := q.DeleteAllRecords(ctx); err != nil {
			return err
		}
		for _, rec := range records {
			if err := q.UpsertRecord(ctx, recordToRow(rec)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace records: %w", err)
	}
	return nil
}

// Upsert inserts or updates the given records.
func (s *RecordStore) Upsert(ctx context.Context, records ...outline.Record) error {
	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		for _, rec := range records {
			if err := q.UpsertRecord(ctx, recordToRow(rec)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert records: %w", err)
	}
	return nil
}

// DeleteIDs removes the given records.
func (s *RecordStore) DeleteIDs(ctx context.Context, ids ...string) error {
	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		for _, id := range ids {
			if err := q.DeleteRecord(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

func rowToRecord(row db.RecordRow) outline.Record {
	return outline.Record{
		ID:       row.ID,
		ParentID: row.ParentID,
		Position: int(row.Position),
		Text:     row.Text,
		State:    outline.State(row.State),
		Tag:      outline.Tag(row.Tag),
		Version:  row.Version,
	}
}

func recordToRow(rec outline.Record) db.RecordRow {
	return db.RecordRow{
		ID:       rec.ID,
		ParentID: rec.ParentID,
		Position: int64(rec.Position),
		Text:     rec.Text,
		State:    int64(rec.State),
		Tag:      int64(rec.Tag),
		Version:  rec.Version,
	}
}
