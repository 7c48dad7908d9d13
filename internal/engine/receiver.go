package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jarnaez728/swimsync/internal/record"
	"github.com/jarnaez728/swimsync/internal/remote"
	"github.com/jarnaez728/swimsync/internal/store"
)

// PullOnce fetches remote deltas since the persisted cursor and applies
// them. At most one pull is in flight at a time. A failure leaves the
// cursor untouched so the next pull resumes from the same point.
func (e *Engine) PullOnce(ctx context.Context) error {
	e.pullMu.Lock()
	defer e.pullMu.Unlock()

	if !e.isAuthenticated() {
		return nil
	}

	since, err := e.cursor.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cursor: %w", err)
	}

	e.status.set(StatusSyncing)
	resp, err := e.remote.Pull(ctx, e.opts.Zone, since)
	if errors.Is(err, remote.ErrZoneNotFound) {
		// Fresh account: create the zone and report an empty cycle.
		if err := e.remote.CreateZone(ctx, e.opts.Zone); err != nil {
			e.setCycleResult(err)
			return fmt.Errorf("failed to create zone: %w", err)
		}
		e.setCycleResult(nil)
		return nil
	}
	if err != nil {
		e.setCycleResult(err)
		return fmt.Errorf("pull failed: %w", err)
	}

	if err := e.ApplyDeltas(ctx, resp); err != nil {
		e.setCycleResult(err)
		return err
	}
	e.setCycleResult(nil)
	return nil
}

// ApplyDeltas applies one inbound delta batch: every modification and
// deletion commits in a single local-store transaction, so no reader ever
// observes a partially applied batch. A record that fails to decode is
// skipped and logged; the rest of the batch proceeds. After commit, one
// change notification fires per record kind actually touched.
func (e *Engine) ApplyDeltas(ctx context.Context, resp *remote.PullResponse) error {
	if resp.ZoneDeleted {
		return e.handleZoneDeleted(ctx)
	}

	// Deletions already pending locally are skipped: the local delete will
	// be (or was) pushed, and re-deleting would be a no-op anyway. Read
	// this before opening the transaction.
	skipDelete := make(map[string]bool)
	for _, id := range resp.Deleted {
		pending, err := e.store.HasPendingDelete(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to check pending deletes: %w", err)
		}
		if pending {
			skipDelete[id] = true
		}
	}

	touched := make(map[record.Kind]bool)
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, rec := range resp.Modified {
			if err := e.applyRemoteRecord(ctx, tx, rec); err != nil {
				var invalid *InvalidRecordError
				if errors.As(err, &invalid) {
					e.logger.Printf("Skipping invalid inbound record: %v", invalid)
					continue
				}
				return err
			}
			touched[record.Kind(rec.Kind)] = true
		}
		for _, id := range resp.Deleted {
			if skipDelete[id] {
				continue
			}
			kind, found, err := tx.DeleteRecordAnyKind(ctx, id)
			if err != nil {
				return err
			}
			if found {
				touched[kind] = true
			}
		}
		return nil
	})
	if err != nil {
		// Nothing was applied; the caller may retry the pull from the same
		// cursor.
		return fmt.Errorf("failed to apply delta batch: %w", err)
	}

	if len(resp.NextCursor) > 0 {
		if err := e.cursor.Save(ctx, resp.NextCursor); err != nil {
			e.logger.Printf("Failed to save cursor after pull: %v", err)
		}
	}

	// Notifications never fire inside the transaction.
	for kind := range touched {
		e.notifier.notify(kind)
	}
	if len(resp.Modified) > 0 || len(resp.Deleted) > 0 {
		e.logger.Printf("Applied %d modifications, %d deletions", len(resp.Modified), len(resp.Deleted))
	}
	return nil
}

// handleZoneDeleted treats a remote zone deletion as "local cache
// invalidated": wipe both record kinds and the queue, clear the cursor, and
// recreate the zone before resuming.
func (e *Engine) handleZoneDeleted(ctx context.Context) error {
	e.logger.Printf("Remote zone %s deleted, invalidating local cache", e.opts.Zone)
	e.cancelFlushTimer()

	if err := e.store.WipeRecords(ctx); err != nil {
		return fmt.Errorf("failed to wipe local records: %w", err)
	}
	if err := e.cursor.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cursor: %w", err)
	}
	if err := e.remote.CreateZone(ctx, e.opts.Zone); err != nil {
		return fmt.Errorf("failed to recreate zone: %w", err)
	}

	e.notifier.notify(record.KindUser)
	e.notifier.notify(record.KindSwimTime)
	return nil
}
