// Package store defines the coordination store contract.
//
// The store is the only thing learner and workers share: model weights
// and their version counter, the rating list, the opponent pool, the
// rollout queue, and the worker registry. Every method is one atomic
// operation against the backing service; multi-step sequences built on
// top of them (read ratings, average, write back) are deliberately not
// transactional. Occasional interleaving between workers is an accepted
// tradeoff for throughput.
package store

import (
	"context"

	"github.com/okian/scrim/internal/domain/model"
)

// Logical key names shared by all implementations.
const (
	KeyModelLatest    = "model-latest"
	KeyModelVersion   = "model-version"
	KeyQualities      = "qualities"
	KeyOpponentModels = "opponent-models"
	KeyRollouts       = "rollout"
	KeyWorkerIDs      = "worker-ids"
)

// Store provides shared state access for the rollout protocol.
type Store interface {
	// SetModel publishes blob as the latest model weights.
	SetModel(ctx context.Context, blob []byte) error
	// Model returns the latest model weights.
	// Returns ErrNotFound before the first publish.
	Model(ctx context.Context) ([]byte, error)

	// SetVersion sets the latest model version counter.
	SetVersion(ctx context.Context, version int) error
	// Version returns the latest model version counter.
	// Returns ErrNotFound before the first publish.
	Version(ctx context.Context) (int, error)

	// AppendRating appends a rating; the new entry's index is its version.
	AppendRating(ctx context.Context, r model.Rating) error
	// SetRating overwrites the rating at index version.
	// Returns ErrNotFound if no rating exists there yet.
	SetRating(ctx context.Context, version int, r model.Rating) error
	// Rating returns the rating for one version.
	// Returns ErrNotFound if the version has no rating.
	Rating(ctx context.Context, version int) (model.Rating, error)
	// Ratings returns all ratings ordered by version, baseline first.
	Ratings(ctx context.Context) ([]model.Rating, error)

	// AppendOpponent appends a snapshot to the opponent pool.
	AppendOpponent(ctx context.Context, snap model.ModelSnapshot) error
	// Opponent returns the pool entry at index.
	// Returns ErrNotFound for an out-of-range index.
	Opponent(ctx context.Context, index int) (model.ModelSnapshot, error)
	// OpponentVersions lists the version of each pool entry in pool order.
	OpponentVersions(ctx context.Context) ([]int, error)

	// PushSubmission enqueues a completed match.
	// Returns ErrQueueFull when the queue is at capacity.
	PushSubmission(ctx context.Context, sub model.MatchSubmission) error
	// PopSubmission blocks until a submission is available, the store is
	// closed (ErrClosed), or ctx is done.
	PopSubmission(ctx context.Context) (model.MatchSubmission, error)
	// QueueLen returns the number of pending submissions.
	QueueLen(ctx context.Context) (int, error)

	// RegisterWorker appends a worker identity to the registry. The
	// registry is observational only; it gates nothing.
	RegisterWorker(ctx context.Context, id string) error
	// Workers lists registered worker identities.
	Workers(ctx context.Context) ([]string, error)

	// Clear deletes all protocol keys.
	Clear(ctx context.Context) error

	// Close releases the store. Blocked PopSubmission calls return
	// ErrClosed.
	Close() error
}
