package record

import (
	"encoding/json"
	"fmt"
)

// User is a swimmer profile.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// SysFields is the remote service's optimistic-concurrency stamp.
	// Empty for records that have never completed a sync round trip.
	// Only the sync engine writes this field, and only after a confirmed
	// push acknowledgment or an accepted pull.
	SysFields []byte `json:"-"`
}

// Validate checks the user's business fields.
func (u *User) Validate() error {
	if err := ValidateID(u.ID); err != nil {
		return err
	}
	if u.Name == "" {
		return fmt.Errorf("user name is required")
	}
	if len(u.Name) > 200 {
		return fmt.Errorf("user name must be 200 characters or less (got %d)", len(u.Name))
	}
	return nil
}

// MarshalFields encodes the user's business fields (not SysFields) for the
// wire. The remote service treats the payload as opaque bytes.
func (u *User) MarshalFields() ([]byte, error) {
	return json.Marshal(u)
}

// UnmarshalUser decodes a wire payload into a User. SysFields is left empty;
// the caller attaches the stamp that traveled alongside the payload.
func UnmarshalUser(data []byte) (*User, error) {
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("malformed user payload: %w", err)
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}
