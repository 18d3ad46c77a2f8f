package selection

import "errors"

// Sentinel kinds for selection errors.
var (
	ErrEmptyPool = errors.New("no opponents in pool")
)
