package engine

import (
	"context"
	"fmt"

	"github.com/jarnaez728/swimsync/internal/record"
	"github.com/jarnaez728/swimsync/internal/remote"
	"github.com/jarnaez728/swimsync/internal/store"
)

// resolveConflict applies the remote-wins policy to one rejected write: the
// service-supplied authoritative state replaces all local business fields
// and sys_fields, and any queue entry for the id is dropped — the local
// write is superseded, not retried.
//
// Records are flat, so no field-level merge is needed; this is a documented
// simplification, not a general merge.
func (e *Engine) resolveConflict(ctx context.Context, entry store.PendingChange, res remote.PerRecordResult) error {
	// A newer local change may have been enqueued while the rejected one
	// was in flight; it is superseded too.
	if err := e.store.RemoveChange(ctx, entry.RecordID); err != nil {
		e.logger.Printf("Failed to drop superseded queue entry for %s: %v", entry.RecordID, err)
	}

	if res.ServerRecord == nil {
		// The record no longer exists server-side; the deletion wins.
		if err := e.store.DeleteRecord(ctx, entry.Kind, entry.RecordID); err != nil {
			return fmt.Errorf("failed to apply remote deletion: %w", err)
		}
		e.logger.Printf("Conflict on %s %s: remote deletion wins", entry.Kind, entry.RecordID)
		e.notifier.notify(entry.Kind)
		return nil
	}

	if err := e.applyRemoteRecord(ctx, nil, *res.ServerRecord); err != nil {
		return err
	}
	e.logger.Printf("Conflict on %s %s: remote state wins", entry.Kind, entry.RecordID)
	e.notifier.notify(entry.Kind)
	return nil
}

// applyRemoteRecord writes one remote-authoritative record into the local
// store, creating it if absent. When tx is non-nil the write joins that
// transaction (receiver batches); otherwise it runs standalone (conflict
// resolution re-stamps a single record).
func (e *Engine) applyRemoteRecord(ctx context.Context, tx *store.Tx, rec remote.Record) error {
	kind, err := record.ParseKind(rec.Kind)
	if err != nil {
		return &InvalidRecordError{Kind: record.Kind(rec.Kind), ID: rec.ID, Err: err}
	}

	switch kind {
	case record.KindUser:
		u, err := record.UnmarshalUser(rec.Fields)
		if err != nil {
			return &InvalidRecordError{Kind: kind, ID: rec.ID, Err: err}
		}
		u.SysFields = rec.SysFields
		if tx != nil {
			return tx.UpsertUserRemote(ctx, u)
		}
		return e.store.UpsertUserRemote(ctx, u)

	case record.KindSwimTime:
		st, err := record.UnmarshalSwimTime(rec.Fields)
		if err != nil {
			return &InvalidRecordError{Kind: kind, ID: rec.ID, Err: err}
		}
		st.SysFields = rec.SysFields
		if tx != nil {
			return tx.UpsertSwimTimeRemote(ctx, st)
		}
		return e.store.UpsertSwimTimeRemote(ctx, st)
	}
	return &InvalidRecordError{Kind: kind, ID: rec.ID, Err: fmt.Errorf("unhandled kind")}
}
