package domain

import "errors"

var (
	// ErrValidation signals malformed or oversized caller input.
	ErrValidation = errors.New("validation failed")
	// ErrUpstreamUnavailable signals a failed external provider after retries.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrEmbeddingUnavailable signals that the embedding provider could not
	// produce a vector; retrieval must degrade to filter-only search.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrPersistence signals a failed store write.
	ErrPersistence = errors.New("persistence failed")
	// ErrProfileNotFound signals a missing profile.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrDropNotFound signals a missing weekly drop.
	ErrDropNotFound = errors.New("weekly drop not found")
	// ErrNotEnoughMatches signals that a batch run produced fewer candidates
	// than the publish minimum.
	ErrNotEnoughMatches = errors.New("not enough matches to publish")
)

// StageError tags an error with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with the failing stage name.
func NewStageError(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// StageOf extracts the failing stage name from an error chain, or "unknown".
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "unknown"
}
