package engine

import (
	"context"
	"fmt"

	"github.com/jarnaez728/swimsync/internal/record"
	"github.com/jarnaez728/swimsync/internal/remote"
	"github.com/jarnaez728/swimsync/internal/store"
)

// The lifecycle state machine has two states — authenticated ("active") and
// not — and cycles between them indefinitely as account events arrive.

func (e *Engine) isAuthenticated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authenticated
}

func (e *Engine) setAuthenticated(v bool) {
	e.mu.Lock()
	e.authenticated = v
	e.mu.Unlock()
}

// HandleAccountChange applies one session transition.
//
// SignIn ensures the zone exists, pulls all remote changes, then reseeds:
// every local record is enqueued for push, which merges two previously
// disconnected stores under the same account.
//
// SignOut and account switch cancel any armed debounced send, clear the
// cursor, and delete all local records of both kinds — the local cache is
// not trusted to belong to the new (or absent) account.
func (e *Engine) HandleAccountChange(ctx context.Context, change remote.AccountChange) error {
	switch change {
	case remote.AccountSignIn:
		return e.signIn(ctx)
	case remote.AccountSignOut, remote.AccountSwitch:
		return e.signOut(ctx)
	}
	return fmt.Errorf("unknown account change %q", change)
}

func (e *Engine) signIn(ctx context.Context) error {
	e.logger.Printf("Account sign-in: resuming sync for zone %s", e.opts.Zone)
	e.setAuthenticated(true)

	if err := e.remote.CreateZone(ctx, e.opts.Zone); err != nil {
		return fmt.Errorf("failed to ensure zone: %w", err)
	}
	if err := e.PullOnce(ctx); err != nil {
		return err
	}
	if err := e.Reseed(ctx); err != nil {
		return err
	}
	return e.Flush(ctx)
}

func (e *Engine) signOut(ctx context.Context) error {
	e.logger.Printf("Account sign-out: wiping local cache for zone %s", e.opts.Zone)
	e.cancelFlushTimer()
	e.setAuthenticated(false)

	if err := e.cursor.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cursor: %w", err)
	}
	if err := e.store.WipeRecords(ctx); err != nil {
		return fmt.Errorf("failed to wipe local records: %w", err)
	}

	e.notifier.notify(record.KindUser)
	e.notifier.notify(record.KindSwimTime)
	e.status.set(StatusIdle)
	return nil
}

// Reseed enqueues every local record of both kinds for transmission. Used
// after sign-in and for an explicit full-sync reset.
func (e *Engine) Reseed(ctx context.Context) error {
	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users for reseed: %w", err)
	}
	for _, u := range users {
		if err := e.store.EnqueueChange(ctx, store.PendingChange{
			RecordID: u.ID, Kind: record.KindUser, Op: store.OpUpsert,
		}); err != nil {
			return err
		}
	}

	times, err := e.store.ListSwimTimes(ctx, store.SwimTimeFilter{})
	if err != nil {
		return fmt.Errorf("failed to list swim times for reseed: %w", err)
	}
	for _, st := range times {
		if err := e.store.EnqueueChange(ctx, store.PendingChange{
			RecordID: st.ID, Kind: record.KindSwimTime, Op: store.OpUpsert,
		}); err != nil {
			return err
		}
	}

	e.logger.Printf("Reseeded %d users, %d swim times", len(users), len(times))
	return nil
}
