package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jarnaez728/swimsync/internal/record"
)

// Op is the pending operation recorded for a local mutation.
type Op string

const (
	// OpUpsert transmits the record's current local state.
	OpUpsert Op = "upsert"
	// OpDelete transmits a deletion of the record id.
	OpDelete Op = "delete"
)

// PendingChange is one queued local mutation awaiting transmission. The
// queue holds at most one entry per record id; a later enqueue replaces the
// earlier one, since only the final local intent matters for the wire.
type PendingChange struct {
	RecordID string
	Kind     record.Kind
	Op       Op
}

// EnqueueChange records a pending mutation, replacing any existing entry for
// the same record id.
func (s *Store) EnqueueChange(ctx context.Context, c PendingChange) error {
	return enqueueChange(ctx, s.conn, c)
}

// EnqueueChange is the transactional variant of Store.EnqueueChange.
func (t *Tx) EnqueueChange(ctx context.Context, c PendingChange) error {
	return enqueueChange(ctx, t.tx, c)
}

func enqueueChange(ctx context.Context, q querier, c PendingChange) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO pending_changes (record_id, kind, op, queued_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			kind = excluded.kind,
			op = excluded.op,
			queued_at = excluded.queued_at`,
		c.RecordID, string(c.Kind), string(c.Op),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to enqueue change for %s: %w", c.RecordID, err)
	}
	return nil
}

// DrainChanges atomically returns and removes all pending changes, oldest
// first. The caller owns the drained entries; entries that fail transmission
// for a retryable cause go back via RequeueChanges.
func (s *Store) DrainChanges(ctx context.Context) ([]PendingChange, error) {
	var drained []PendingChange
	err := s.WithTx(ctx, func(tx *Tx) error {
		rows, err := tx.tx.QueryContext(ctx,
			"SELECT record_id, kind, op FROM pending_changes ORDER BY queued_at, record_id")
		if err != nil {
			return fmt.Errorf("failed to read pending changes: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c PendingChange
			var kind, op string
			if err := rows.Scan(&c.RecordID, &kind, &op); err != nil {
				return fmt.Errorf("failed to scan pending change: %w", err)
			}
			c.Kind = record.Kind(kind)
			c.Op = Op(op)
			drained = append(drained, c)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if _, err := tx.tx.ExecContext(ctx, "DELETE FROM pending_changes"); err != nil {
			return fmt.Errorf("failed to clear pending changes: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drained, nil
}

// RequeueChanges reinserts entries that failed transmission. An entry is
// skipped if a newer change for the same record id was enqueued while the
// old one was in flight; the newer local intent wins.
func (s *Store) RequeueChanges(ctx context.Context, entries []PendingChange) error {
	if len(entries) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *Tx) error {
		stamp := time.Now().UTC().Format(time.RFC3339Nano)
		for _, c := range entries {
			_, err := tx.tx.ExecContext(ctx, `
				INSERT INTO pending_changes (record_id, kind, op, queued_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(record_id) DO NOTHING`,
				c.RecordID, string(c.Kind), string(c.Op), stamp)
			if err != nil {
				return fmt.Errorf("failed to requeue change for %s: %w", c.RecordID, err)
			}
		}
		return nil
	})
}

// RemoveChange drops the queue entry for one record id, if present.
func (s *Store) RemoveChange(ctx context.Context, recordID string) error {
	if _, err := s.conn.ExecContext(ctx,
		"DELETE FROM pending_changes WHERE record_id = ?", recordID); err != nil {
		return fmt.Errorf("failed to remove pending change for %s: %w", recordID, err)
	}
	return nil
}

// PendingCount returns the number of queued changes.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	return countTable(ctx, s.conn, "pending_changes")
}

// HasPendingChanges reports whether anything is waiting to be sent.
func (s *Store) HasPendingChanges(ctx context.Context) (bool, error) {
	n, err := s.PendingCount(ctx)
	return n > 0, err
}

// HasPendingDelete reports whether the queue holds a delete for the id.
// The receiver uses this to skip inbound deletions that are already pending
// locally.
func (s *Store) HasPendingDelete(ctx context.Context, recordID string) (bool, error) {
	var op string
	err := s.conn.QueryRowContext(ctx,
		"SELECT op FROM pending_changes WHERE record_id = ?", recordID).Scan(&op)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check pending delete for %s: %w", recordID, err)
	}
	return Op(op) == OpDelete, nil
}
