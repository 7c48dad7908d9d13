package store

import (
	"context"
	"fmt"

	"github.com/jarnaez728/swimsync/internal/record"
)

// tableFor maps a record kind to its table name.
func tableFor(kind record.Kind) (string, error) {
	switch kind {
	case record.KindUser:
		return "users", nil
	case record.KindSwimTime:
		return "swim_times", nil
	}
	return "", fmt.Errorf("unknown record kind %q", kind)
}

func deleteByID(ctx context.Context, q querier, table, id string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

func countTable(ctx context.Context, q querier, table string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// DeleteRecord removes a record of any kind by id.
func (s *Store) DeleteRecord(ctx context.Context, kind record.Kind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	return deleteByID(ctx, s.conn, table, id)
}

// DeleteRecord is the transactional variant of Store.DeleteRecord.
func (t *Tx) DeleteRecord(ctx context.Context, kind record.Kind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	return deleteByID(ctx, t.tx, table, id)
}

// DeleteRecordAnyKind removes a record whose kind is unknown (remote
// deletions carry only the id). Reports the kind that was actually touched,
// or found=false if the id exists in neither table.
func (t *Tx) DeleteRecordAnyKind(ctx context.Context, id string) (record.Kind, bool, error) {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return "", false, fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return record.KindUser, true, nil
	}
	res, err = t.tx.ExecContext(ctx, "DELETE FROM swim_times WHERE id = ?", id)
	if err != nil {
		return "", false, fmt.Errorf("failed to delete swim time %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return record.KindSwimTime, true, nil
	}
	return "", false, nil
}

// SaveSysFields persists the remote service's concurrency stamp for a record
// after a confirmed round trip. Business fields are never touched here.
// Returns ErrNotFound if the record was deleted locally in the interim; the
// caller treats that as a no-op.
func (s *Store) SaveSysFields(ctx context.Context, kind record.Kind, id string, sys []byte) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := s.conn.ExecContext(ctx,
		"UPDATE "+table+" SET sys_fields = ? WHERE id = ?", sys, id)
	if err != nil {
		return fmt.Errorf("failed to save sys fields for %s %s: %w", kind, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// WipeRecords deletes every record of both kinds plus the pending-change
// queue. Used on sign-out, account switch, and remote zone deletion, when
// the local cache is no longer trusted.
func (s *Store) WipeRecords(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		for _, table := range []string{"swim_times", "users", "pending_changes"} {
			if _, err := tx.tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to wipe %s: %w", table, err)
			}
		}
		return nil
	})
}
