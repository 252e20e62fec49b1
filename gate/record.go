package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrIncompleteRecord is returned when a stored record is missing fields
// required by the current token generation. Such records are treated the
// same as absent ones everywhere except the schema-check outcome.
var ErrIncompleteRecord = errors.New("token record is missing required fields")

// Record is the persisted access-token entry. It is created by the
// external issuer; the gate only ever reads it, deletes it once expired,
// or flips the revocation fields.
type Record struct {
	OwnerID   string     `json:"owner_id"`
	Token     string     `json:"token"`
	TargetURL string     `json:"target_url"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Validate confirms the record carries every field the current token
// generation requires. Legacy or partially written records fail here.
func (r *Record) Validate() error {
	switch {
	case r.OwnerID == "":
		return fmt.Errorf("%w: owner_id", ErrIncompleteRecord)
	case r.TargetURL == "":
		return fmt.Errorf("%w: target_url", ErrIncompleteRecord)
	case r.ExpiresAt.IsZero():
		return fmt.Errorf("%w: expires_at", ErrIncompleteRecord)
	}
	return nil
}

// ExpiredAt reports whether the record is expired at the given instant.
// expires_at is the sole authority; there is no implicit maximum
// lifetime.
func (r *Record) ExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

func encodeRecord(r *Record) ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(raw []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompleteRecord, err)
	}
	return &rec, nil
}
