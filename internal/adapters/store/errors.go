package store

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrQueueFull = errors.New("rollout queue full")
	ErrClosed    = errors.New("store closed")
)
