package service

import "errors"

var (
	// ErrDispatchFailed wraps transport-level delivery failures. The
	// job is left queued; the caller decides between redelivery and a
	// terminal error.
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrCorrelationNotFound means a worker result arrived for an
	// unknown or already-deleted job. A dangling result is a sign of
	// a missing job, not a processing error; it is logged and never
	// surfaced as a user-facing failure.
	ErrCorrelationNotFound = errors.New("correlation not found")

	// ErrNotCancellable means the job had already been dispatched; at
	// that point cancellation is advisory only.
	ErrNotCancellable = errors.New("job is no longer cancellable")
)
