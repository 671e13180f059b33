package store

import "errors"

var (
	// ErrNotFound means no job exists for the given id.
	ErrNotFound = errors.New("job not found")

	// ErrStaleTransition means the job's current status was not in the
	// expected set when a conditional update ran. Benign race; the
	// caller should re-fetch and decide whether to retry.
	ErrStaleTransition = errors.New("stale transition")

	// ErrDuplicateKeyRace means a concurrent Create won the dedupe key
	// but its record was not yet readable. Benign; re-fetch.
	ErrDuplicateKeyRace = errors.New("duplicate key race")
)
