package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/jarnaez728/swimsync/internal/remote"
)

// fakeRemote is an in-memory remote.Service for engine tests. Every push
// succeeds with a fresh revision stamp unless a per-id override or a
// whole-call failure is installed.
type fakeRemote struct {
	mu sync.Mutex

	zones    map[string]bool
	records  map[string]remote.Record // by id
	revision int

	// pushErr fails the next Push calls entirely.
	pushErr error
	// pullErr fails the next Pull calls entirely.
	pullErr error
	// results overrides the outcome for specific record ids.
	results map[string]remote.PerRecordResult
	// pullResp is returned verbatim by Pull when set.
	pullResp *remote.PullResponse

	pushes  int
	pulls   int
	deletes []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		zones:   map[string]bool{"swimlog": true},
		records: make(map[string]remote.Record),
		results: make(map[string]remote.PerRecordResult),
	}
}

func (f *fakeRemote) stamp() []byte {
	f.revision++
	sys, _ := json.Marshal(map[string]any{"record_revision": strconv.Itoa(f.revision)})
	return sys
}

func (f *fakeRemote) Push(ctx context.Context, zone string, upserts []remote.Record, deletes []string) ([]remote.PerRecordResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pushes++
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	if !f.zones[zone] {
		return nil, remote.ErrZoneNotFound
	}

	var results []remote.PerRecordResult
	for _, rec := range upserts {
		if res, ok := f.results[rec.ID]; ok {
			results = append(results, res)
			continue
		}
		stored := rec
		stored.SysFields = f.stamp()
		f.records[rec.ID] = stored
		results = append(results, remote.PerRecordResult{
			ID: rec.ID, Status: remote.StatusOK, SysFields: stored.SysFields,
		})
	}
	for _, id := range deletes {
		f.deletes = append(f.deletes, id)
		if res, ok := f.results[id]; ok {
			results = append(results, res)
			continue
		}
		delete(f.records, id)
		results = append(results, remote.PerRecordResult{ID: id, Status: remote.StatusOK})
	}
	return results, nil
}

func (f *fakeRemote) Pull(ctx context.Context, zone string, since []byte) (*remote.PullResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pulls++
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	if !f.zones[zone] {
		return nil, remote.ErrZoneNotFound
	}
	if f.pullResp != nil {
		return f.pullResp, nil
	}

	resp := &remote.PullResponse{
		NextCursor: []byte(fmt.Sprintf("rev-%d", f.revision)),
	}
	for _, rec := range f.records {
		resp.Modified = append(resp.Modified, rec)
	}
	return resp, nil
}

func (f *fakeRemote) CreateZone(ctx context.Context, zone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zones[zone] = true
	return nil
}

func (f *fakeRemote) DeleteZone(ctx context.Context, zone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.zones, zone)
	return nil
}

func (f *fakeRemote) Count(ctx context.Context, zone, kind string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rec := range f.records {
		if rec.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (f *fakeRemote) Events(ctx context.Context) (<-chan remote.Event, error) {
	ch := make(chan remote.Event)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (f *fakeRemote) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes
}

func (f *fakeRemote) record(id string) (remote.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return rec, ok
}

func (f *fakeRemote) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

func (f *fakeRemote) setResult(id string, res remote.PerRecordResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = res
}

func (f *fakeRemote) clearResult(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.results, id)
}

func (f *fakeRemote) setPushErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushErr = err
}
