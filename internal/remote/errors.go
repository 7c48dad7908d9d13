package remote

import "errors"

// ErrTransient marks a network-level failure worth retrying. The sender
// requeues the affected changes and relies on the next debounce cycle.
var ErrTransient = errors.New("transient network error")

// ErrZoneNotFound is returned when an operation targets a zone that does not
// exist (and the call is not a pull, which reports ZoneDeleted instead).
var ErrZoneNotFound = errors.New("zone not found")

// IsTransient reports whether err should be retried rather than surfaced.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
