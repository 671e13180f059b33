// Package keygen produces client-side idempotency keys for job
// submissions. Keys are UUIDv7 strings: globally unique, embed a
// millisecond timestamp in the high bits, and therefore sort
// lexicographically in creation order without a separate column.
package keygen

import (
	"time"

	"github.com/google/uuid"
)

// Key is a time-ordered idempotency key.
type Key = string

// NewKey returns a fresh time-ordered key. Safe to call from any
// goroutine; never fails (falls back to the library's internal
// randomness retry).
func NewKey() Key {
	return uuid.Must(uuid.NewV7()).String()
}

// TimeOf extracts the timestamp embedded in a key. Returns the zero
// time if the value is not a parseable time-ordered key.
func TimeOf(k Key) time.Time {
	id, err := uuid.Parse(k)
	if err != nil || id.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec)
}

// Valid reports whether k looks like a key produced by NewKey.
func Valid(k Key) bool {
	id, err := uuid.Parse(k)
	return err == nil && id.Version() == 7
}
