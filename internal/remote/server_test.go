package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"testing"
	"time"
)

// setupTestServer starts a reference server on a loopback port and returns
// a client pointed at it.
func setupTestServer(t *testing.T) (*Client, *Server) {
	t.Helper()

	srv := NewServer(log.New(io.Discard, "", 0))
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return NewClient("http://"+srv.Addr(), nil), srv
}

func userRecord(id, name string, sys []byte) Record {
	fields, _ := json.Marshal(map[string]string{"id": id, "name": name})
	return Record{ID: id, Kind: "user", Fields: fields, SysFields: sys}
}

func TestPushPullRoundTrip(t *testing.T) {
	client, _ := setupTestServer(t)
	ctx := context.Background()

	if err := client.CreateZone(ctx, "swimlog"); err != nil {
		t.Fatalf("CreateZone failed: %v", err)
	}

	results, err := client.Push(ctx, "swimlog", []Record{
		userRecord("u1", "Alice", nil),
		userRecord("u2", "Bob", nil),
	}, nil)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if res.Status != StatusOK {
			t.Errorf("record %s: expected ok, got %s", res.ID, res.Status)
		}
		if len(res.SysFields) == 0 {
			t.Errorf("record %s: missing stamp", res.ID)
		}
	}

	resp, err := client.Pull(ctx, "swimlog", nil)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if len(resp.Modified) != 2 || len(resp.Deleted) != 0 {
		t.Fatalf("expected 2 modified records, got %+v", resp)
	}
	if len(resp.NextCursor) == 0 {
		t.Fatal("expected a cursor")
	}
}

func TestPullIsIncrementalFromCursor(t *testing.T) {
	client, _ := setupTestServer(t)
	ctx := context.Background()

	if err := client.CreateZone(ctx, "swimlog"); err != nil {
		t.Fatalf("CreateZone failed: %v", err)
	}
	if _, err := client.Push(ctx, "swimlog", []Record{userRecord("u1", "Alice", nil)}, nil); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	first, err := client.Pull(ctx, "swimlog", nil)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	if _, err := client.Push(ctx, "swimlog", []Record{userRecord("u2", "Bob", nil)}, []string{"u1"}); err != nil {
		t.Fatalf("second Push failed: %v", err)
	}

	delta, err := client.Pull(ctx, "swimlog", first.NextCursor)
	if err != nil {
		t.Fatalf("incremental Pull failed: %v", err)
	}
	if len(delta.Modified) != 1 || delta.Modified[0].ID != "u2" {
		t.Errorf("expected only u2 in the delta, got %+v", delta.Modified)
	}
	if len(delta.Deleted) != 1 || delta.Deleted[0] != "u1" {
		t.Errorf("expected u1 tombstone, got %v", delta.Deleted)
	}

	// Nothing changed since: empty delta, same frontier.
	quiet, err := client.Pull(ctx, "swimlog", delta.NextCursor)
	if err != nil {
		t.Fatalf("quiet Pull failed: %v", err)
	}
	if len(quiet.Modified) != 0 || len(quiet.Deleted) != 0 {
		t.Errorf("expected empty delta, got %+v", quiet)
	}
}

func TestStaleStampConflicts(t *testing.T) {
	client, _ := setupTestServer(t)
	ctx := context.Background()

	if err := client.CreateZone(ctx, "swimlog"); err != nil {
		t.Fatalf("CreateZone failed: %v", err)
	}

	results, err := client.Push(ctx, "swimlog", []Record{userRecord("u1", "Alice", nil)}, nil)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	stamp := results[0].SysFields

	// Device B overwrites with the current stamp: accepted.
	results, err = client.Push(ctx, "swimlog", []Record{userRecord("u1", "Alice B", stamp)}, nil)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if results[0].Status != StatusOK {
		t.Fatalf("current stamp rejected: %s", results[0].Status)
	}

	// Device A still holds the old stamp: conflict, with the authoritative
	// state attached.
	results, err = client.Push(ctx, "swimlog", []Record{userRecord("u1", "Alice A", stamp)}, nil)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if results[0].Status != StatusConflict {
		t.Fatalf("stale stamp accepted: %s", results[0].Status)
	}
	if results[0].ServerRecord == nil {
		t.Fatal("conflict result missing server state")
	}
	var fields map[string]string
	if err := json.Unmarshal(results[0].ServerRecord.Fields, &fields); err != nil {
		t.Fatalf("server record undecodable: %v", err)
	}
	if fields["name"] != "Alice B" {
		t.Errorf("expected authoritative name Alice B, got %q", fields["name"])
	}

	// A first-time creation against an existing record conflicts too.
	results, err = client.Push(ctx, "swimlog", []Record{userRecord("u1", "Alice C", nil)}, nil)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if results[0].Status != StatusConflict {
		t.Errorf("empty stamp against existing record accepted: %s", results[0].Status)
	}
}

func TestConflictOnServerDeletedRecord(t *testing.T) {
	client, _ := setupTestServer(t)
	ctx := context.Background()

	if err := client.CreateZone(ctx, "swimlog"); err != nil {
		t.Fatalf("CreateZone failed: %v", err)
	}
	results, err := client.Push(ctx, "swimlog", []Record{userRecord("u1", "Alice", nil)}, nil)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	stamp := results[0].SysFields

	if _, err := client.Push(ctx, "swimlog", nil, []string{"u1"}); err != nil {
		t.Fatalf("delete Push failed: %v", err)
	}

	results, err = client.Push(ctx, "swimlog", []Record{userRecord("u1", "Alice Again", stamp)}, nil)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if results[0].Status != StatusConflict || results[0].ServerRecord != nil {
		t.Errorf("expected conflict with nil server record, got %+v", results[0])
	}
}

func TestZoneLifecycle(t *testing.T) {
	client, _ := setupTestServer(t)
	ctx := context.Background()

	// Operations against a never-created zone.
	if _, err := client.Push(ctx, "nowhere", []Record{userRecord("u1", "x", nil)}, nil); err != ErrZoneNotFound {
		t.Errorf("expected ErrZoneNotFound on push, got %v", err)
	}
	if _, err := client.Pull(ctx, "nowhere", nil); err != ErrZoneNotFound {
		t.Errorf("expected ErrZoneNotFound on pull, got %v", err)
	}

	if err := client.CreateZone(ctx, "swimlog"); err != nil {
		t.Fatalf("CreateZone failed: %v", err)
	}
	// Creating an existing zone is not an error.
	if err := client.CreateZone(ctx, "swimlog"); err != nil {
		t.Fatalf("repeat CreateZone failed: %v", err)
	}

	if _, err := client.Push(ctx, "swimlog", []Record{userRecord("u1", "Alice", nil)}, nil); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if err := client.DeleteZone(ctx, "swimlog"); err != nil {
		t.Fatalf("DeleteZone failed: %v", err)
	}

	// A deleted zone reports ZoneDeleted on pull rather than 404.
	resp, err := client.Pull(ctx, "swimlog", nil)
	if err != nil {
		t.Fatalf("Pull after zone delete failed: %v", err)
	}
	if !resp.ZoneDeleted {
		t.Error("expected ZoneDeleted")
	}

	// Recreating resets it to empty.
	if err := client.CreateZone(ctx, "swimlog"); err != nil {
		t.Fatalf("recreate failed: %v", err)
	}
	resp, err = client.Pull(ctx, "swimlog", nil)
	if err != nil {
		t.Fatalf("Pull after recreate failed: %v", err)
	}
	if resp.ZoneDeleted || len(resp.Modified) != 0 {
		t.Errorf("recreated zone not empty: %+v", resp)
	}
}

func TestCount(t *testing.T) {
	client, _ := setupTestServer(t)
	ctx := context.Background()

	if err := client.CreateZone(ctx, "swimlog"); err != nil {
		t.Fatalf("CreateZone failed: %v", err)
	}
	swim := Record{ID: "s1", Kind: "swim_time", Fields: []byte(`{}`)}
	if _, err := client.Push(ctx, "swimlog", []Record{
		userRecord("u1", "Alice", nil), userRecord("u2", "Bob", nil), swim,
	}, nil); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	n, err := client.Count(ctx, "swimlog", "user")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 users, got %d", n)
	}
	n, err = client.Count(ctx, "swimlog", "")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 records, got %d", n)
	}
}

func TestEventStreamDeliversPushAndAccountEvents(t *testing.T) {
	client, srv := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, err := client.Events(ctx)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	// Give the server a moment to register the subscriber.
	time.Sleep(100 * time.Millisecond)

	if err := client.CreateZone(ctx, "swimlog"); err != nil {
		t.Fatalf("CreateZone failed: %v", err)
	}
	if _, err := client.Push(ctx, "swimlog", []Record{userRecord("u1", "Alice", nil)}, nil); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != EventStateUpdated {
			t.Fatalf("expected state_updated, got %s", ev.Type)
		}
		if len(ev.Cursor) == 0 {
			t.Error("state_updated event missing cursor")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for push event")
	}

	body, _ := json.Marshal(map[string]string{"change": "sign_out"})
	resp, err := http.Post("http://"+srv.Addr()+"/account", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("account post failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("account post rejected: %d", resp.StatusCode)
	}

	select {
	case ev := <-events:
		if ev.Type != EventAccountChanged || ev.Account != AccountSignOut {
			t.Fatalf("expected account_changed/sign_out, got %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for account event")
	}
}

func TestClientClassifiesConnectionErrorsTransient(t *testing.T) {
	// Nothing listens here.
	client := NewClient("http://127.0.0.1:1", &http.Client{Timeout: time.Second})
	_, err := client.Pull(context.Background(), "swimlog", nil)
	if !IsTransient(err) {
		t.Errorf("expected transient classification, got %v", err)
	}
}
