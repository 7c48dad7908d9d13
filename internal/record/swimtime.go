package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stroke is the swimming style of a recorded time.
type Stroke string

const (
	StrokeFreestyle    Stroke = "freestyle"
	StrokeBackstroke   Stroke = "backstroke"
	StrokeBreaststroke Stroke = "breaststroke"
	StrokeButterfly    Stroke = "butterfly"
	StrokeMedley       Stroke = "medley"
)

// ParseStroke converts a wire/user string into a Stroke.
func ParseStroke(s string) (Stroke, error) {
	switch Stroke(s) {
	case StrokeFreestyle, StrokeBackstroke, StrokeBreaststroke, StrokeButterfly, StrokeMedley:
		return Stroke(s), nil
	}
	return "", fmt.Errorf("unknown stroke %q", s)
}

// SwimTime is a single recorded swim result.
type SwimTime struct {
	ID string `json:"id"`

	// UserID references the owning User. Referential integrity is the
	// caller's responsibility; the sync engine moves records as-is.
	UserID string `json:"user_id"`

	Date     time.Time `json:"date"`
	Distance int       `json:"distance_meters"`
	Stroke   Stroke    `json:"stroke"`
	Elapsed  float64   `json:"elapsed_seconds"`

	// SysFields mirrors User.SysFields. See that field for the write rules.
	SysFields []byte `json:"-"`
}

// Validate checks the swim time's business fields.
func (s *SwimTime) Validate() error {
	if err := ValidateID(s.ID); err != nil {
		return err
	}
	if err := ValidateID(s.UserID); err != nil {
		return fmt.Errorf("owning user: %w", err)
	}
	if s.Date.IsZero() {
		return fmt.Errorf("swim date is required")
	}
	if s.Distance <= 0 {
		return fmt.Errorf("distance must be positive (got %d)", s.Distance)
	}
	if _, err := ParseStroke(string(s.Stroke)); err != nil {
		return err
	}
	if s.Elapsed <= 0 {
		return fmt.Errorf("elapsed time must be positive (got %v)", s.Elapsed)
	}
	return nil
}

// MarshalFields encodes the swim time's business fields for the wire.
func (s *SwimTime) MarshalFields() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSwimTime decodes a wire payload into a SwimTime, validating the
// stroke enum. An unparseable payload is an invalid record, not a fatal
// error: the receiver skips it and continues with the rest of the batch.
func UnmarshalSwimTime(data []byte) (*SwimTime, error) {
	var s SwimTime
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("malformed swim time payload: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
