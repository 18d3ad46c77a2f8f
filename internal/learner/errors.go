package learner

import "errors"

// Sentinel kinds for learner errors.
var (
	// ErrUnknownVersion marks a submission referencing a version with no
	// stored rating. The submission is dropped, not retried.
	ErrUnknownVersion = errors.New("version has no rating")
)
