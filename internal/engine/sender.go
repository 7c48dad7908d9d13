package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jarnaez728/swimsync/internal/record"
	"github.com/jarnaez728/swimsync/internal/remote"
	"github.com/jarnaez728/swimsync/internal/store"
)

// Flush drains the pending-change queue, snapshots each upsert's current
// local state, pushes one batch to the remote service, and interprets the
// per-record results. At most one push is in flight at a time.
//
// Side effects on success are limited to sys_fields (and, via the conflict
// resolver, full remote-wins rewrites of conflicted records). Business
// fields are never mutated by a successful send.
func (e *Engine) Flush(ctx context.Context) error {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	if !e.isAuthenticated() {
		return nil
	}

	drained, err := e.store.DrainChanges(ctx)
	if err != nil {
		return fmt.Errorf("failed to drain change queue: %w", err)
	}
	if len(drained) == 0 {
		return nil
	}

	// Build the outbound batch from a point-in-time read of the local
	// store. Drain and snapshot go through the same serialized store
	// connection as the enqueue path, so an upsert whose record is missing
	// here was genuinely deleted after it was queued — drop it, logged.
	byID := make(map[string]store.PendingChange, len(drained))
	var upserts []remote.Record
	var deletes []string
	for _, c := range drained {
		byID[c.RecordID] = c
		switch c.Op {
		case store.OpDelete:
			deletes = append(deletes, c.RecordID)
		case store.OpUpsert:
			rec, err := e.snapshotRecord(ctx, c)
			if errors.Is(err, store.ErrNotFound) {
				e.logger.Printf("Dropping queued upsert for %s %s: record deleted locally before send", c.Kind, c.RecordID)
				delete(byID, c.RecordID)
				continue
			}
			if err != nil {
				// Local store failure: put everything back and report.
				if rqErr := e.store.RequeueChanges(ctx, drained); rqErr != nil {
					e.logger.Printf("Failed to requeue after snapshot error: %v", rqErr)
				}
				return fmt.Errorf("failed to snapshot %s %s: %w", c.Kind, c.RecordID, err)
			}
			upserts = append(upserts, *rec)
		}
	}
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}

	e.status.set(StatusSyncing)
	results, err := e.remote.Push(ctx, e.opts.Zone, upserts, deletes)
	if err != nil {
		// The whole call failed before per-record outcomes were known:
		// requeue the batch unchanged and wait for the next cycle.
		var remaining []store.PendingChange
		for _, c := range drained {
			if _, ok := byID[c.RecordID]; ok {
				remaining = append(remaining, c)
			}
		}
		if rqErr := e.store.RequeueChanges(ctx, remaining); rqErr != nil {
			e.logger.Printf("Failed to requeue batch: %v", rqErr)
		}
		e.scheduleFlush(e.opts.DebounceWindow)
		e.setCycleResult(err)
		return fmt.Errorf("push failed: %w", err)
	}

	// Individual record outcomes take precedence; apply them in the order
	// the service returned them.
	var retry []store.PendingChange
	for _, res := range results {
		entry, ok := byID[res.ID]
		if !ok {
			e.logger.Printf("Push result for unknown record %s ignored", res.ID)
			continue
		}
		switch res.Status {
		case remote.StatusOK:
			if entry.Op == store.OpUpsert {
				err := e.store.SaveSysFields(ctx, entry.Kind, entry.RecordID, res.SysFields)
				if errors.Is(err, store.ErrNotFound) {
					// Deleted locally while the push was in flight; the
					// queued deletion will win on the next cycle.
					continue
				}
				if err != nil {
					e.logger.Printf("Failed to persist sys fields for %s: %v", entry.RecordID, err)
				}
			}
		case remote.StatusConflict:
			if err := e.resolveConflict(ctx, entry, res); err != nil {
				e.logger.Printf("Conflict resolution for %s failed: %v", entry.RecordID, err)
			}
		case remote.StatusRetry:
			retry = append(retry, entry)
		default:
			e.logger.Printf("Unknown push status %q for %s, requeueing", res.Status, entry.RecordID)
			retry = append(retry, entry)
		}
	}

	if len(retry) > 0 {
		if err := e.store.RequeueChanges(ctx, retry); err != nil {
			e.logger.Printf("Failed to requeue retryable changes: %v", err)
		}
		// The debounce window doubles as the minimum inter-attempt delay.
		e.scheduleFlush(e.opts.DebounceWindow)
	}

	e.setCycleResult(nil)
	e.logger.Printf("Pushed %d upserts, %d deletes (%d retryable)", len(upserts), len(deletes), len(retry))
	return nil
}

// snapshotRecord builds the outbound representation of one queued upsert:
// the record's current business fields merged onto its previously stored
// sys_fields stamp so the service can run its optimistic check. An empty
// stamp marks a first-time creation.
func (e *Engine) snapshotRecord(ctx context.Context, c store.PendingChange) (*remote.Record, error) {
	switch c.Kind {
	case record.KindUser:
		u, err := e.store.GetUser(ctx, c.RecordID)
		if err != nil {
			return nil, err
		}
		fields, err := u.MarshalFields()
		if err != nil {
			return nil, err
		}
		return &remote.Record{ID: u.ID, Kind: string(record.KindUser), Fields: fields, SysFields: u.SysFields}, nil

	case record.KindSwimTime:
		st, err := e.store.GetSwimTime(ctx, c.RecordID)
		if err != nil {
			return nil, err
		}
		fields, err := st.MarshalFields()
		if err != nil {
			return nil, err
		}
		return &remote.Record{ID: st.ID, Kind: string(record.KindSwimTime), Fields: fields, SysFields: st.SysFields}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", c.Kind)
}
