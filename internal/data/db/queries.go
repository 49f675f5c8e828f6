package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so Queries works inside and
// outside transactions.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries is the hand-written query layer over the schema.
type Queries struct {
	db DBTX
}

// RecordRow mirrors one row of the records table.
type RecordRow struct {
	ID       string
	ParentID string
	Position int64
	Text     string
	State    int64
	Tag      int64
	Version  string
}

// SyncStateRow mirrors the single sync_state row.
type SyncStateRow struct {
	ChangeToken  string
	Enabled      bool
	ActiveRootID string
}

// ListRecords returns every record, ordered by parent then position.
func (q *Queries) ListRecords(ctx context.Context) ([]RecordRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, parent_id, position, text, state, tag, version
		FROM records
		ORDER BY parent_id, position`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []RecordRow
	for rows.Next() {
		var r RecordRow
		if err := rows.Scan(&r.ID, &r.ParentID, &r.Position, &r.Text, &r.State, &r.Tag, &r.Version); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRecord returns one record by id.
func (q *Queries) GetRecord(ctx context.Context, id string) (RecordRow, error) {
	var r RecordRow
	err := q.db.QueryRowContext(ctx, `
		SELECT id, parent_id, position, text, state, tag, version
		FROM records WHERE id = ?`, id).
		Scan(&r.ID, &r.ParentID, &r.Position, &r.Text, &r.State, &r.Tag, &r.Version)
	return r, err
}

// UpsertRecord inserts or replaces one record. An empty incoming version
// keeps the stored one: saves coming from the editing path carry no version
// metadata, and losing the stored version would make every later sync of the
// record conflict.
func (q *Queries) UpsertRecord(ctx context.Context, r RecordRow) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO records (id, parent_id, position, text, state, tag, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = excluded.parent_id,
			position  = excluded.position,
			text      = excluded.text,
			state     = excluded.state,
			tag       = excluded.tag,
			version   = CASE WHEN excluded.version = '' THEN records.version ELSE excluded.version END`,
		r.ID, r.ParentID, r.Position, r.Text, r.State, r.Tag, r.Version)
	return err
}

// DeleteRecord removes one record by id.
func (q *Queries) DeleteRecord(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	return err
}

// DeleteAllRecords truncates the records table.
func (q *Queries) DeleteAllRecords(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM records`)
	return err
}

// GetSyncState returns the single sync_state row.
func (q *Queries) GetSyncState(ctx context.Context) (SyncStateRow, error) {
	var s SyncStateRow
	err := q.db.QueryRowContext(ctx, `
		SELECT change_token, enabled, active_root_id FROM sync_state WHERE id = 1`).
		Scan(&s.ChangeToken, &s.Enabled, &s.ActiveRootID)
	return s, err
}

// SetChangeToken stores the remote change cursor.
func (q *Queries) SetChangeToken(ctx context.Context, token string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE sync_state SET change_token = ? WHERE id = 1`, token)
	return err
}

// SetSyncEnabled stores the user's sync intention.
func (q *Queries) SetSyncEnabled(ctx context.Context, enabled bool) error {
	_, err := q.db.ExecContext(ctx, `UPDATE sync_state SET enabled = ? WHERE id = 1`, enabled)
	return err
}

// SetActiveRootID stores the id of the currently-active local root.
func (q *Queries) SetActiveRootID(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE sync_state SET active_root_id = ? WHERE id = 1`, id)
	return err
}
