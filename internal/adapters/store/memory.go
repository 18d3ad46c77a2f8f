package store

import (
	"context"
	"sync"

	"github.com/okian/scrim/internal/adapters/codec"
	"github.com/okian/scrim/internal/domain/model"
)

// defaultQueueCapacity bounds the in-memory rollout queue.
const defaultQueueCapacity = 100000

// Memory implements Store in process memory. It backs tests and
// single-machine runs where learner and workers share a process.
//
// Values cross the codec on the way in and out, so callers observe the
// same copy semantics a remote store would give them.
type Memory struct {
	codec    codec.Codec
	capacity int

	mu        sync.RWMutex
	modelBlob []byte
	version   int
	hasModel  bool
	hasVer    bool
	ratings   []model.Rating
	opponents [][]byte // encoded ModelSnapshot, pool order
	workers   []string

	queue  chan []byte // encoded MatchSubmission
	closed bool
}

// NewMemory creates an in-memory store with configuration options.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		codec:    codec.NewGob(),
		capacity: defaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.queue = make(chan []byte, m.capacity)
	return m
}

func (m *Memory) SetModel(_ context.Context, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelBlob = append([]byte(nil), blob...)
	m.hasModel = true
	return nil
}

func (m *Memory) Model(_ context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasModel {
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.modelBlob...), nil
}

func (m *Memory) SetVersion(_ context.Context, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = version
	m.hasVer = true
	return nil
}

func (m *Memory) Version(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasVer {
		return 0, ErrNotFound
	}
	return m.version, nil
}

func (m *Memory) AppendRating(_ context.Context, r model.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratings = append(m.ratings, r)
	return nil
}

func (m *Memory) SetRating(_ context.Context, version int, r model.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if version < 0 || version >= len(m.ratings) {
		return ErrNotFound
	}
	m.ratings[version] = r
	return nil
}

func (m *Memory) Rating(_ context.Context, version int) (model.Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if version < 0 || version >= len(m.ratings) {
		return model.Rating{}, ErrNotFound
	}
	return m.ratings[version], nil
}

func (m *Memory) Ratings(_ context.Context) ([]model.Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Rating(nil), m.ratings...), nil
}

func (m *Memory) AppendOpponent(_ context.Context, snap model.ModelSnapshot) error {
	data, err := m.codec.Encode(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opponents = append(m.opponents, data)
	return nil
}

func (m *Memory) Opponent(_ context.Context, index int) (model.ModelSnapshot, error) {
	m.mu.RLock()
	if index < 0 || index >= len(m.opponents) {
		m.mu.RUnlock()
		return model.ModelSnapshot{}, ErrNotFound
	}
	data := m.opponents[index]
	m.mu.RUnlock()

	var snap model.ModelSnapshot
	if err := m.codec.Decode(data, &snap); err != nil {
		return model.ModelSnapshot{}, err
	}
	return snap, nil
}

func (m *Memory) OpponentVersions(_ context.Context) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := make([]int, 0, len(m.opponents))
	for _, data := range m.opponents {
		var snap model.ModelSnapshot
		if err := m.codec.Decode(data, &snap); err != nil {
			return nil, err
		}
		versions = append(versions, snap.Version)
	}
	return versions, nil
}

func (m *Memory) PushSubmission(ctx context.Context, sub model.MatchSubmission) error {
	data, err := m.codec.Encode(sub)
	if err != nil {
		return err
	}

	// The send never blocks, so the lock is held across it: Close takes
	// the write lock before closing the channel.
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	select {
	case m.queue <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (m *Memory) PopSubmission(ctx context.Context) (model.MatchSubmission, error) {
	select {
	case data, ok := <-m.queue:
		if !ok {
			return model.MatchSubmission{}, ErrClosed
		}
		var sub model.MatchSubmission
		if err := m.codec.Decode(data, &sub); err != nil {
			return model.MatchSubmission{}, err
		}
		return sub, nil
	case <-ctx.Done():
		return model.MatchSubmission{}, ctx.Err()
	}
}

func (m *Memory) QueueLen(_ context.Context) (int, error) {
	return len(m.queue), nil
}

func (m *Memory) RegisterWorker(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, id)
	return nil
}

func (m *Memory) Workers(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.workers...), nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelBlob = nil
	m.hasModel = false
	m.version = 0
	m.hasVer = false
	m.ratings = nil
	m.opponents = nil
	m.workers = nil
	for {
		select {
		case <-m.queue:
		default:
			return nil
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.queue)
	return nil
}
