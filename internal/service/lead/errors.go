package lead

import "errors"

// Sentinel errors for the lead service layer.
var (
	ErrNotFound = errors.New("lead not found")

	// ErrConflict means the compare-and-set lost a race: the lead's status
	// changed since it was read. Callers re-read and re-apply.
	ErrConflict = errors.New("lead status changed concurrently")
)
