package meetingctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// snapshotSchema creates the context snapshot table. One JSONB payload per
// save; the latest row per meeting wins on restore.
const snapshotSchema = `
CREATE TABLE IF NOT EXISTS context_snapshots (
    id         BIGSERIAL PRIMARY KEY,
    meeting_id TEXT        NOT NULL,
    payload    JSONB       NOT NULL,
    taken_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS context_snapshots_meeting_idx
    ON context_snapshots (meeting_id, taken_at DESC);`

// PostgresSnapshotStore implements [SnapshotStore] on a PostgreSQL pool.
// All methods are safe for concurrent use.
type PostgresSnapshotStore struct {
	pool *pgxpool.Pool
}

var _ SnapshotStore = (*PostgresSnapshotStore)(nil)

// NewPostgresSnapshotStore creates the store and ensures its schema exists.
func NewPostgresSnapshotStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresSnapshotStore, error) {
	if _, err := pool.Exec(ctx, snapshotSchema); err != nil {
		return nil, fmt.Errorf("meetingctx: create snapshot schema: %w", err)
	}
	return &PostgresSnapshotStore{pool: pool}, nil
}

// Save implements [SnapshotStore]. Each call inserts a new row; stale rows
// for the same meeting are pruned so the table stays one row per meeting
// plus the one just written.
func (s *PostgresSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("meetingctx: marshal snapshot: %w", err)
	}

	const q = `
		WITH inserted AS (
		    INSERT INTO context_snapshots (meeting_id, payload, taken_at)
		    VALUES ($1, $2, now())
		    RETURNING id
		)
		DELETE FROM context_snapshots
		WHERE  meeting_id = $1
		  AND  id < (SELECT id FROM inserted)`

	if _, err := s.pool.Exec(ctx, q, snap.MeetingID, payload); err != nil {
		return fmt.Errorf("meetingctx: save snapshot: %w", err)
	}
	return nil
}

// Latest implements [SnapshotStore].
func (s *PostgresSnapshotStore) Latest(ctx context.Context, meetingID string) (*Snapshot, error) {
	const q = `
		SELECT payload
		FROM   context_snapshots
		WHERE  meeting_id = $1
		ORDER  BY taken_at DESC
		LIMIT  1`

	var payload []byte
	if err := s.pool.QueryRow(ctx, q, meetingID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("meetingctx: %w: no snapshot for meeting %s", meet.ErrNotFound, meetingID)
		}
		return nil, fmt.Errorf("meetingctx: load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("meetingctx: decode snapshot: %w", err)
	}
	return &snap, nil
}
