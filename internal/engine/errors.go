package engine

import (
	"fmt"

	"github.com/jarnaez728/swimsync/internal/record"
)

// InvalidRecordError reports an inbound delta that could not be decoded
// (unknown kind, unparseable payload, bad enum value). The receiver skips
// the record, logs it, and proceeds with the rest of the batch.
type InvalidRecordError struct {
	Kind record.Kind
	ID   string
	Err  error
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid %s record %s: %v", e.Kind, e.ID, e.Err)
}

func (e *InvalidRecordError) Unwrap() error {
	return e.Err
}
