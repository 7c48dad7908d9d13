package engine

import "sync/atomic"

// Status is the coarse sync state exposed to the UI. It never blocks local
// CRUD: a failing sync degrades to StatusError while the user keeps working
// offline.
type Status int32

const (
	// StatusIdle: no sync activity, last cycle succeeded (or none ran yet).
	StatusIdle Status = iota
	// StatusSyncing: a push or pull cycle is in flight.
	StatusSyncing
	// StatusError: the last background cycle failed; queued changes will be
	// retried on the next cycle.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSyncing:
		return "syncing"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

type statusSignal struct {
	v atomic.Int32
}

func (s *statusSignal) get() Status {
	return Status(s.v.Load())
}

func (s *statusSignal) set(st Status) {
	s.v.Store(int32(st))
}
