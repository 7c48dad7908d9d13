package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/jarnaez728/swimsync/internal/store"
)

// cursorKeyPrefix namespaces cursor blobs in the store's meta table, one
// entry per zone.
const cursorKeyPrefix = "cursor/"

// cursorEnvelope is the persisted form of a sync cursor. The cursor bytes
// themselves stay opaque; the envelope only adds a save timestamp.
type cursorEnvelope struct {
	Cursor  []byte    `json:"cursor"`
	SavedAt time.Time `json:"saved_at"`
}

// cursorStore persists the resumable sync cursor for one zone. A value that
// fails to decode is treated as absent, never fatal: the next pull simply
// re-scans full history.
type cursorStore struct {
	store *store.Store
	zone  string
}

func newCursorStore(st *store.Store, zone string) *cursorStore {
	return &cursorStore{store: st, zone: zone}
}

func (c *cursorStore) key() string {
	return cursorKeyPrefix + c.zone
}

// Load returns the saved cursor, or nil if absent or undecodable.
func (c *cursorStore) Load(ctx context.Context) ([]byte, error) {
	raw, err := c.store.GetMeta(ctx, c.key())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(raw)))
	n, err := base64.StdEncoding.Decode(decoded, raw)
	if err != nil {
		// Corrupt on decode: clear and proceed as fresh.
		_ = c.Clear(ctx)
		return nil, nil
	}
	var env cursorEnvelope
	if err := json.Unmarshal(decoded[:n], &env); err != nil {
		_ = c.Clear(ctx)
		return nil, nil
	}
	return env.Cursor, nil
}

// Save persists the cursor, replacing any previous value.
func (c *cursorStore) Save(ctx context.Context, cursor []byte) error {
	encoded, err := json.Marshal(cursorEnvelope{Cursor: cursor, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	wrapped := make([]byte, base64.StdEncoding.EncodedLen(len(encoded)))
	base64.StdEncoding.Encode(wrapped, encoded)
	return c.store.PutMeta(ctx, c.key(), wrapped)
}

// Clear removes the cursor. Called on sign-out, account switch, and remote
// zone deletion.
func (c *cursorStore) Clear(ctx context.Context) error {
	return c.store.DeleteMeta(ctx, c.key())
}
