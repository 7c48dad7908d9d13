// Package remote defines the record synchronization service the engine
// talks to, plus an HTTP/websocket client and a reference in-memory server
// implementing the wire protocol.
//
// The engine consumes only the Service interface. Records travel as opaque
// payload bytes plus a system-fields stamp; the service performs an
// optimistic-concurrency check against the stamp on every upsert and
// reports the outcome per record.
package remote

import (
	"context"
	"encoding/json"
)

// Record is the wire representation of one record.
type Record struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`

	// Fields is the business payload, opaque to the service.
	Fields json.RawMessage `json:"fields"`

	// SysFields is the service's concurrency stamp. On an upsert it carries
	// the last stamp the client observed (empty for first-time creation);
	// the service rejects the write if it is stale.
	SysFields []byte `json:"sys_fields,omitempty"`
}

// ResultStatus classifies one record's outcome within a push batch.
type ResultStatus string

const (
	// StatusOK: the write was accepted; PerRecordResult.SysFields holds the
	// new stamp to persist locally.
	StatusOK ResultStatus = "ok"
	// StatusConflict: the stamp was stale; PerRecordResult.ServerRecord
	// holds the authoritative current state (nil if deleted server-side).
	StatusConflict ResultStatus = "conflict"
	// StatusRetry: a transient failure; the change should be requeued.
	StatusRetry ResultStatus = "retry"
)

// PerRecordResult is the outcome of one upsert or delete within a batch.
type PerRecordResult struct {
	ID           string       `json:"id"`
	Status       ResultStatus `json:"status"`
	SysFields    []byte       `json:"sys_fields,omitempty"`
	ServerRecord *Record      `json:"server_record,omitempty"`
}

// PullResponse carries everything that changed in a zone since a cursor.
type PullResponse struct {
	Modified []Record `json:"modified"`
	Deleted  []string `json:"deleted"`

	// ZoneDeleted reports that the zone itself was deleted remotely. The
	// engine reacts by wiping the local cache and recreating the zone.
	ZoneDeleted bool `json:"zone_deleted,omitempty"`

	// NextCursor is the opaque resumable token covering this response.
	NextCursor []byte `json:"next_cursor"`
}

// AccountChange is a session transition observed by the service.
type AccountChange string

const (
	AccountSignIn  AccountChange = "sign_in"
	AccountSignOut AccountChange = "sign_out"
	AccountSwitch  AccountChange = "switch"
)

// EventType tags the service's asynchronous event stream.
type EventType string

const (
	// EventStateUpdated delivers a fresh cursor on the service's own
	// cadence, independent of any push or pull the client issued.
	EventStateUpdated EventType = "state_updated"
	// EventAccountChanged reports a sign-in, sign-out, or account switch.
	EventAccountChanged EventType = "account_changed"
	// EventWillSync and EventDidSync bracket a service-driven sync pass.
	EventWillSync EventType = "will_sync"
	EventDidSync  EventType = "did_sync"
)

// Event is one entry of the service's event stream. Exactly the fields
// relevant to its Type are populated.
type Event struct {
	Type    EventType     `json:"type"`
	Cursor  []byte        `json:"cursor,omitempty"`
	Account AccountChange `json:"account,omitempty"`
}

// Service is the record synchronization backend consumed by the engine.
//
// At most one push and one pull per zone are in flight at a time; the engine
// enforces that bound. Calls may run concurrently with local store access.
type Service interface {
	// Push transmits a batch of upserts and deletes scoped to a zone and
	// returns one result per record, in service order. A returned error
	// means the whole call failed before per-record outcomes were known.
	Push(ctx context.Context, zone string, upserts []Record, deletes []string) ([]PerRecordResult, error)

	// Pull returns everything that changed since the cursor. A nil or empty
	// cursor requests full history.
	Pull(ctx context.Context, zone string, since []byte) (*PullResponse, error)

	// CreateZone ensures the zone exists. Creating an existing zone is not
	// an error.
	CreateZone(ctx context.Context, zone string) error

	// DeleteZone removes the zone and all its records.
	DeleteZone(ctx context.Context, zone string) error

	// Count returns the number of records of one kind in the zone.
	Count(ctx context.Context, zone, kind string) (int, error)

	// Events subscribes to the service's event stream. The channel closes
	// when ctx is cancelled or the connection is lost.
	Events(ctx context.Context) (<-chan Event, error)
}
