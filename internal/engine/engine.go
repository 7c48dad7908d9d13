// Package engine implements the swimsync synchronization core: it tracks
// pending local mutations in a durable change queue, batches and pushes them
// to the remote record service after a debounce window, ingests remote
// deltas atomically, resolves write-write conflicts (remote wins), and
// persists a resumable sync cursor per zone.
//
// The engine is local-first: a user write commits to the local store and
// only then is enqueued for transmission; a later sync failure never rolls
// it back. Background sync failures degrade to a visible error status while
// local CRUD keeps working; queued changes flush automatically once the
// service is reachable again.
package engine

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/jarnaez728/swimsync/internal/record"
	"github.com/jarnaez728/swimsync/internal/remote"
	"github.com/jarnaez728/swimsync/internal/store"
)

// Options configures an Engine.
type Options struct {
	// Zone is the remote zone all records and the cursor are scoped to.
	Zone string

	// DebounceWindow is the coalescing delay before a batch push. Every
	// enqueue within the window resets the timer (true debounce).
	DebounceWindow time.Duration

	// DeleteDebounceWindow is the shorter delay used when the enqueue is a
	// single deletion.
	DeleteDebounceWindow time.Duration

	// MaxDebounceDelay caps how long a steady stream of enqueues can defer
	// the flush, guaranteeing forward progress.
	MaxDebounceDelay time.Duration

	// Logger for engine activity. Defaults to stderr.
	Logger *log.Logger
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Zone:                 "swimlog",
		DebounceWindow:       time.Second,
		DeleteDebounceWindow: 250 * time.Millisecond,
		MaxDebounceDelay:     10 * time.Second,
	}
}

func (o *Options) fillDefaults() {
	def := DefaultOptions()
	if o.Zone == "" {
		o.Zone = def.Zone
	}
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = def.DebounceWindow
	}
	if o.DeleteDebounceWindow <= 0 {
		o.DeleteDebounceWindow = def.DeleteDebounceWindow
	}
	if o.MaxDebounceDelay <= 0 {
		o.MaxDebounceDelay = def.MaxDebounceDelay
	}
	if o.Logger == nil {
		o.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
}

// Engine is the synchronization engine. Construct with New, then either run
// Start in a goroutine for background sync or drive Flush/PullOnce manually
// (tests and one-shot CLI commands do the latter).
type Engine struct {
	store  *store.Store
	remote remote.Service
	opts   Options
	logger *log.Logger

	cursor   *cursorStore
	notifier *notifier
	status   statusSignal

	// mu guards the debounce timer, its forward-progress deadline, and the
	// lifecycle state.
	mu            sync.Mutex
	timer         *time.Timer
	flushDeadline time.Time
	authenticated bool

	// pushMu and pullMu bound in-flight network calls to one push and one
	// pull at a time.
	pushMu sync.Mutex
	pullMu sync.Mutex

	flushCh chan struct{}
	pullCh  chan struct{}
}

// New creates an engine over the given local store and remote service.
func New(st *store.Store, svc remote.Service, opts Options) *Engine {
	opts.fillDefaults()
	return &Engine{
		store:         st,
		remote:        svc,
		opts:          opts,
		logger:        opts.Logger,
		cursor:        newCursorStore(st, opts.Zone),
		notifier:      newNotifier(),
		authenticated: true,
		flushCh:       make(chan struct{}, 1),
		pullCh:        make(chan struct{}, 1),
	}
}

// Status returns the coarse sync status.
func (e *Engine) Status() Status {
	return e.status.get()
}

// Subscribe registers a change observer for one record kind. The channel
// receives a signal after every committed mutation of that kind; call the
// returned function to unsubscribe.
func (e *Engine) Subscribe(kind record.Kind) (<-chan struct{}, func()) {
	return e.notifier.subscribe(kind)
}

// Zone returns the remote zone this engine syncs.
func (e *Engine) Zone() string {
	return e.opts.Zone
}

// Start runs the engine's processing loop until ctx is cancelled: debounce
// timer fires trigger pushes, pull requests trigger pulls, and the remote
// service's event stream drives cursor saves and lifecycle transitions.
//
// Start subscribes to the event stream once; if the subscription fails the
// loop still serves flush/pull triggers and logs the degradation.
func (e *Engine) Start(ctx context.Context) error {
	events, err := e.remote.Events(ctx)
	if err != nil {
		e.logger.Printf("Event stream unavailable, continuing without: %v", err)
		events = nil
	}

	for {
		select {
		case <-ctx.Done():
			e.cancelFlushTimer()
			return nil

		case <-e.flushCh:
			if err := e.Flush(ctx); err != nil {
				e.logger.Printf("Background flush failed (will retry): %v", err)
			}

		case <-e.pullCh:
			if err := e.PullOnce(ctx); err != nil {
				e.logger.Printf("Background pull failed (will retry): %v", err)
			}

		case ev, ok := <-events:
			if !ok {
				e.logger.Printf("Event stream closed")
				events = nil
				continue
			}
			e.handleEvent(ctx, ev)
		}
	}
}

// handleEvent dispatches one remote service event. All event handling goes
// through this single switch.
func (e *Engine) handleEvent(ctx context.Context, ev remote.Event) {
	switch ev.Type {
	case remote.EventStateUpdated:
		// The event's cursor is advisory only. Adopting it here would skip
		// every change between our saved cursor and the announced one; the
		// cursor moves when a pull actually commits its deltas.
		e.RequestPull()

	case remote.EventAccountChanged:
		if err := e.HandleAccountChange(ctx, ev.Account); err != nil {
			e.logger.Printf("Account change %s failed: %v", ev.Account, err)
		}

	case remote.EventWillSync:
		e.status.set(StatusSyncing)

	case remote.EventDidSync:
		e.status.set(StatusIdle)

	default:
		e.logger.Printf("Ignoring unknown event type %q", ev.Type)
	}
}

// RequestFlush asks the processing loop to push pending changes soon,
// bypassing the debounce window. Non-blocking.
func (e *Engine) RequestFlush() {
	select {
	case e.flushCh <- struct{}{}:
	default:
	}
}

// RequestPull asks the processing loop to pull remote deltas soon.
// Non-blocking.
func (e *Engine) RequestPull() {
	select {
	case e.pullCh <- struct{}{}:
	default:
	}
}

// SaveUser writes a user locally (insert or update of business fields) and
// enqueues it for push. Errors propagate to the caller; an already-committed
// local write is not rolled back if the enqueue fails.
func (e *Engine) SaveUser(ctx context.Context, u *record.User) error {
	err := e.store.UpdateUser(ctx, u)
	if errors.Is(err, store.ErrNotFound) {
		err = e.store.InsertUser(ctx, u)
	}
	if err != nil {
		return err
	}
	e.notifier.notify(record.KindUser)
	return e.enqueue(ctx, store.PendingChange{
		RecordID: u.ID, Kind: record.KindUser, Op: store.OpUpsert,
	}, e.opts.DebounceWindow)
}

// DeleteUser removes a user locally and enqueues the deletion. Single
// deletions use the shorter debounce window.
func (e *Engine) DeleteUser(ctx context.Context, id string) error {
	if err := e.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	e.notifier.notify(record.KindUser)
	return e.enqueue(ctx, store.PendingChange{
		RecordID: id, Kind: record.KindUser, Op: store.OpDelete,
	}, e.opts.DeleteDebounceWindow)
}

// SaveSwimTime writes a swim time locally and enqueues it for push.
func (e *Engine) SaveSwimTime(ctx context.Context, st *record.SwimTime) error {
	err := e.store.UpdateSwimTime(ctx, st)
	if errors.Is(err, store.ErrNotFound) {
		err = e.store.InsertSwimTime(ctx, st)
	}
	if err != nil {
		return err
	}
	e.notifier.notify(record.KindSwimTime)
	return e.enqueue(ctx, store.PendingChange{
		RecordID: st.ID, Kind: record.KindSwimTime, Op: store.OpUpsert,
	}, e.opts.DebounceWindow)
}

// DeleteSwimTime removes a swim time locally and enqueues the deletion.
func (e *Engine) DeleteSwimTime(ctx context.Context, id string) error {
	if err := e.store.DeleteSwimTime(ctx, id); err != nil {
		return err
	}
	e.notifier.notify(record.KindSwimTime)
	return e.enqueue(ctx, store.PendingChange{
		RecordID: id, Kind: record.KindSwimTime, Op: store.OpDelete,
	}, e.opts.DeleteDebounceWindow)
}

// enqueue records the pending change and arms the debounce timer. The store
// write that preceded it went through the same serialized store connection,
// so a drained upsert can only miss its record if it was deleted afterwards.
func (e *Engine) enqueue(ctx context.Context, c store.PendingChange, window time.Duration) error {
	if err := e.store.EnqueueChange(ctx, c); err != nil {
		return err
	}
	e.scheduleFlush(window)
	return nil
}

// scheduleFlush (re)arms the debounce timer: a fresh enqueue within the
// window resets it, but the hard deadline set by the first enqueue of a
// burst caps the total deferral.
func (e *Engine) scheduleFlush(window time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if e.flushDeadline.IsZero() {
		e.flushDeadline = now.Add(e.opts.MaxDebounceDelay)
	}
	delay := window
	if now.Add(delay).After(e.flushDeadline) {
		delay = e.flushDeadline.Sub(now)
		if delay < 0 {
			delay = 0
		}
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(delay, func() {
		e.mu.Lock()
		e.timer = nil
		e.flushDeadline = time.Time{}
		e.mu.Unlock()
		e.RequestFlush()
	})
}

// cancelFlushTimer stops any armed debounce timer (engine teardown,
// sign-out). An in-flight network call is never cancelled; it runs to
// completion or failure.
func (e *Engine) cancelFlushTimer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.flushDeadline = time.Time{}
}

// CursorLoaded returns the persisted cursor, nil if absent.
func (e *Engine) CursorLoaded(ctx context.Context) ([]byte, error) {
	return e.cursor.Load(ctx)
}

func (e *Engine) setCycleResult(err error) {
	if err != nil {
		e.status.set(StatusError)
		return
	}
	e.status.set(StatusIdle)
}
