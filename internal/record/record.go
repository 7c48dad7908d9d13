// Package record defines the two record kinds synchronized by swimsync:
// users and swim times.
//
// Records are flat structures with last-write-wins semantics. Each record
// carries a stable 128-bit id assigned at creation and, once it has completed
// a sync round trip, an opaque system-fields blob stamped by the remote
// service for optimistic concurrency. The engine stores and echoes the blob
// but never interprets it.
package record

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies which record table an id belongs to.
type Kind string

const (
	// KindUser is a swimmer profile record.
	KindUser Kind = "user"
	// KindSwimTime is a recorded swim result owned by a user.
	KindSwimTime Kind = "swim_time"
)

// Valid reports whether k names a known record kind.
func (k Kind) Valid() bool {
	return k == KindUser || k == KindSwimTime
}

// ParseKind converts a wire string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown record kind %q", s)
	}
	return k, nil
}

// NewID returns a fresh record id. Ids are UUIDv4 strings, unique within
// their kind, assigned once and never reused after deletion.
func NewID() string {
	return uuid.NewString()
}

// ValidateID checks that id is a well-formed record id.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("record id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("malformed record id %q: %w", id, err)
	}
	return nil
}
