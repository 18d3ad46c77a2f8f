package store

import (
	"time"

	"github.com/okian/scrim/internal/adapters/codec"
)

// MemoryOption applies a configuration option to the Memory store.
type MemoryOption func(*Memory)

// WithCapacity sets the rollout queue capacity.
func WithCapacity(capacity int) MemoryOption {
	return func(m *Memory) {
		if capacity > 0 {
			m.capacity = capacity
		}
	}
}

// WithCodec sets the serialization codec.
func WithCodec(c codec.Codec) MemoryOption {
	return func(m *Memory) {
		if c != nil {
			m.codec = c
		}
	}
}

// CouchbaseOption applies a configuration option to the Couchbase store.
type CouchbaseOption func(*Couchbase)

// WithCouchbaseCodec sets the serialization codec.
func WithCouchbaseCodec(c codec.Codec) CouchbaseOption {
	return func(s *Couchbase) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithPollInterval sets how often a blocked PopSubmission re-reads the
// queue document.
func WithPollInterval(d time.Duration) CouchbaseOption {
	return func(s *Couchbase) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithMaxRetries caps the CAS retry loops on contended documents.
func WithMaxRetries(n int) CouchbaseOption {
	return func(s *Couchbase) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}
