package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarnaez728/swimsync/internal/record"
	"github.com/jarnaez728/swimsync/internal/remote"
	"github.com/jarnaez728/swimsync/internal/store"
)

// setupTestEngine creates an engine over a temporary store and a fake
// remote service.
func setupTestEngine(t *testing.T) (*Engine, *store.Store, *fakeRemote) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fake := newFakeRemote()
	eng := New(st, fake, Options{
		Zone:                 "swimlog",
		DebounceWindow:       10 * time.Millisecond,
		DeleteDebounceWindow: 5 * time.Millisecond,
		MaxDebounceDelay:     time.Second,
	})
	return eng, st, fake
}

func mustSaveUser(t *testing.T, eng *Engine, name string) *record.User {
	t.Helper()
	u := &record.User{ID: record.NewID(), Name: name}
	if err := eng.SaveUser(context.Background(), u); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	return u
}

func mustSaveSwimTime(t *testing.T, eng *Engine, userID string) *record.SwimTime {
	t.Helper()
	s := &record.SwimTime{
		ID:       record.NewID(),
		UserID:   userID,
		Date:     time.Date(2026, 6, 10, 7, 15, 0, 0, time.UTC),
		Distance: 100,
		Stroke:   record.StrokeFreestyle,
		Elapsed:  58.4,
	}
	if err := eng.SaveSwimTime(context.Background(), s); err != nil {
		t.Fatalf("SaveSwimTime failed: %v", err)
	}
	return s
}

func pendingCount(t *testing.T, st *store.Store) int {
	t.Helper()
	n, err := st.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	return n
}

func TestSaveUserPushAndStamp(t *testing.T) {
	eng, st, fake := setupTestEngine(t)
	ctx := context.Background()

	u := mustSaveUser(t, eng, "Alice")
	if n := pendingCount(t, st); n != 1 {
		t.Fatalf("expected 1 pending change, got %d", n)
	}

	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if n := pendingCount(t, st); n != 0 {
		t.Errorf("queue not empty after flush: %d", n)
	}
	got, err := st.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if len(got.SysFields) == 0 {
		t.Error("expected sys fields stamp after confirmed push")
	}
	if got.Name != "Alice" {
		t.Errorf("push must not change business fields, got %q", got.Name)
	}
	if _, ok := fake.record(u.ID); !ok {
		t.Error("record missing from remote after push")
	}
	if eng.Status() != StatusIdle {
		t.Errorf("expected idle status, got %v", eng.Status())
	}
}

func TestRapidEditsCollapseToOnePush(t *testing.T) {
	eng, st, fake := setupTestEngine(t)
	ctx := context.Background()

	u := mustSaveUser(t, eng, "Alice")
	for _, name := range []string{"Alicia", "Alyce", "Alice B"} {
		u.Name = name
		if err := eng.SaveUser(ctx, u); err != nil {
			t.Fatalf("SaveUser failed: %v", err)
		}
	}

	if n := pendingCount(t, st); n != 1 {
		t.Fatalf("expected edits to collapse to 1 entry, got %d", n)
	}
	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if fake.pushCount() != 1 {
		t.Errorf("expected 1 push, got %d", fake.pushCount())
	}
	rec, ok := fake.record(u.ID)
	if !ok {
		t.Fatal("record missing from remote")
	}
	// The batch carries the state at send time, not at enqueue time.
	decoded, err := record.UnmarshalUser(rec.Fields)
	if err != nil {
		t.Fatalf("remote payload undecodable: %v", err)
	}
	if decoded.Name != "Alice B" {
		t.Errorf("expected final name on the wire, got %q", decoded.Name)
	}
}

func TestDeleteSupersedesQueuedUpsert(t *testing.T) {
	eng, st, fake := setupTestEngine(t)
	ctx := context.Background()

	u := mustSaveUser(t, eng, "Alice")
	if err := eng.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if n := pendingCount(t, st); n != 1 {
		t.Fatalf("expected collapse to 1 entry, got %d", n)
	}

	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	deleted := fake.deletedIDs()
	if len(deleted) != 1 || deleted[0] != u.ID {
		t.Errorf("expected one deletion on the wire, got %v", deleted)
	}
}

func TestQueuedUpsertForLocallyDeletedRecordIsDropped(t *testing.T) {
	eng, st, fake := setupTestEngine(t)
	ctx := context.Background()

	// An upsert entry whose record vanished from the store (no matching
	// delete entry) is dropped rather than failing the batch.
	if err := st.EnqueueChange(ctx, store.PendingChange{
		RecordID: record.NewID(), Kind: record.KindUser, Op: store.OpUpsert,
	}); err != nil {
		t.Fatalf("EnqueueChange failed: %v", err)
	}

	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if n := pendingCount(t, st); n != 0 {
		t.Errorf("dropped entry still queued: %d", n)
	}
	if fake.pushCount() != 0 {
		t.Errorf("empty batch should not hit the wire, got %d pushes", fake.pushCount())
	}
}

func TestWholePushFailureRequeuesBatch(t *testing.T) {
	eng, st, fake := setupTestEngine(t)
	ctx := context.Background()

	mustSaveUser(t, eng, "Alice")
	mustSaveUser(t, eng, "Bob")
	fake.setPushErr(remote.ErrTransient)

	err := eng.Flush(ctx)
	if err == nil {
		t.Fatal("expected flush error")
	}
	if !remote.IsTransient(err) {
		t.Errorf("expected transient classification, got %v", err)
	}
	if n := pendingCount(t, st); n != 2 {
		t.Errorf("expected both changes requeued, got %d", n)
	}
	if eng.Status() != StatusError {
		t.Errorf("expected error status, got %v", eng.Status())
	}

	// Connectivity returns: the same batch goes through.
	fake.setPushErr(nil)
	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("retry flush failed: %v", err)
	}
	if n := pendingCount(t, st); n != 0 {
		t.Errorf("queue not empty after retry: %d", n)
	}
	if eng.Status() != StatusIdle {
		t.Errorf("expected idle status after recovery, got %v", eng.Status())
	}
}

func TestRetryStatusRequeuesSingleRecord(t *testing.T) {
	eng, st, fake := setupTestEngine(t)
	ctx := context.Background()

	ok := mustSaveUser(t, eng, "Alice")
	flaky := mustSaveUser(t, eng, "Bob")
	fake.setResult(flaky.ID, remote.PerRecordResult{ID: flaky.ID, Status: remote.StatusRetry})

	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// Alice landed, Bob is queued again.
	if _, found := fake.record(ok.ID); !found {
		t.Error("accepted record missing from remote")
	}
	if n := pendingCount(t, st); n != 1 {
		t.Fatalf("expected 1 requeued change, got %d", n)
	}
	got, err := st.GetUser(ctx, flaky.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if len(got.SysFields) != 0 {
		t.Error("retryable record must not be stamped")
	}

	fake.clearResult(flaky.ID)
	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("retry flush failed: %v", err)
	}
	if n := pendingCount(t, st); n != 0 {
		t.Errorf("queue not empty after retry: %d", n)
	}
}

func TestConflictRemoteStateWins(t *testing.T) {
	eng, st, fake := setupTestEngine(t)
	ctx := context.Background()

	u := mustSaveUser(t, eng, "Alice Local")
	serverFields, _ := (&record.User{ID: u.ID, Name: "Alice Remote"}).MarshalFields()
	fake.setResult(u.ID, remote.PerRecordResult{
		ID:     u.ID,
		Status: remote.StatusConflict,
		ServerRecord: &remote.Record{
			ID: u.ID, Kind: string(record.KindUser),
			Fields: serverFields, SysFields: []byte(`{"record_revision":"9"}`),
		},
	})

	events, cancel := eng.Subscribe(record.KindUser)
	defer cancel()

	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	got, err := st.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Name != "Alice Remote" {
		t.Errorf("remote state must win, got %q", got.Name)
	}
	if string(got.SysFields) != `{"record_revision":"9"}` {
		t.Errorf("server stamp not persisted: %s", got.SysFields)
	}
	if n := pendingCount(t, st); n != 0 {
		t.Errorf("superseded change still queued: %d", n)
	}
	select {
	case <-events:
	default:
		t.Error("expected a change notification for the rewritten record")
	}
}

func TestConflictRemoteDeletionWins(t *testing.T) {
	eng, st, fake := setupTestEngine(t)
	ctx := context.Background()

	u := mustSaveUser(t, eng, "Alice")
	fake.setResult(u.ID, remote.PerRecordResult{ID: u.ID, Status: remote.StatusConflict})

	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if _, err := st.GetUser(ctx, u.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected local record deleted, got %v", err)
	}
	if n := pendingCount(t, st); n != 0 {
		t.Errorf("superseded change still queued: %d", n)
	}
}

func TestFlushIsNoOpWhenSignedOut(t *testing.T) {
	eng, st, fake := setupTestEngine(t)
	ctx := context.Background()

	mustSaveUser(t, eng, "Alice")
	if err := eng.HandleAccountChange(ctx, remote.AccountSignOut); err != nil {
		t.Fatalf("sign-out failed: %v", err)
	}

	// Sign-out wiped the queue; even a manually queued change stays put.
	if err := st.EnqueueChange(ctx, store.PendingChange{
		RecordID: record.NewID(), Kind: record.KindUser, Op: store.OpUpsert,
	}); err != nil {
		t.Fatalf("EnqueueChange failed: %v", err)
	}
	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if fake.pushCount() != 0 {
		t.Errorf("signed-out engine must not push, got %d", fake.pushCount())
	}
	if n := pendingCount(t, st); n != 1 {
		t.Errorf("queue must be untouched while signed out, got %d", n)
	}
}

func TestDebounceTimerTriggersFlushRequest(t *testing.T) {
	eng, _, _ := setupTestEngine(t)

	mustSaveUser(t, eng, "Alice")

	select {
	case <-eng.flushCh:
	case <-time.After(2 * time.Second):
		t.Fatal("debounce timer never requested a flush")
	}
}
