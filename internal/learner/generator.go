// Package learner consumes rollouts and feeds the training loop.
//
// The Generator is the single consumer of the rollout queue: it turns
// match submissions into rating updates, filters the experience stream
// down to the latest model version, and publishes new parameters back
// through the coordination store.
package learner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/scrim/internal/adapters/codec"
	"github.com/okian/scrim/internal/adapters/store"
	"github.com/okian/scrim/internal/domain/model"
	"github.com/okian/scrim/internal/domain/rating"
	"github.com/okian/scrim/internal/domain/teams"
	"github.com/okian/scrim/pkg/logger"
	"github.com/okian/scrim/pkg/metrics"
)

// SeedPolicy decides the initial rating of a freshly published version.
type SeedPolicy int

const (
	// SeedLatest copies the most recent version's mu (continuity: a new
	// model is assumed roughly as strong as its predecessor).
	SeedLatest SeedPolicy = iota
	// SeedAnchor starts every version from the zero-centered anchor.
	SeedAnchor
)

// Default generator configuration constants.
const (
	defaultSaveEvery   = 10
	defaultAnchorSigma = 25.0 / 3.0
	defaultRetryDelay  = time.Second
)

// Generator aggregates rollouts and publishes models. It is the only
// writer of the version counter; the counter itself lives in the store
// so a restarted learner resumes the numbering instead of resetting it.
type Generator struct {
	store  store.Store
	rater  *rating.Service
	assign teams.Assigner

	saveEvery  int
	seedPolicy SeedPolicy
	anchor     model.Rating
	clear      bool
	retryDelay time.Duration

	logger logger.Logger
}

// New creates a generator, seeding the baseline rating on first use.
func New(ctx context.Context, st store.Store, opts ...Option) (*Generator, error) {
	g := &Generator{
		store:      st,
		rater:      rating.New(),
		assign:     teams.SplitFirstHalf,
		saveEvery:  defaultSaveEvery,
		seedPolicy: SeedLatest,
		anchor:     model.Rating{Mu: 0, Sigma: defaultAnchorSigma},
		retryDelay: defaultRetryDelay,
		logger:     logger.Get().Named("learner"),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.clear {
		if err := g.store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear store: %w", err)
		}
	}

	ratings, err := g.store.Ratings(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ratings: %w", err)
	}
	if len(ratings) == 0 {
		// The baseline anchor occupies index 0 and is never rewritten.
		if err := g.store.AppendRating(ctx, g.anchor); err != nil {
			return nil, fmt.Errorf("seed baseline rating: %w", err)
		}
	}

	return g, nil
}

// Rollouts returns an unbounded stream of trajectories for the
// training loop. The stream blocks when the queue is empty and ends
// only when ctx is done or the store closes.
func (g *Generator) Rollouts(ctx context.Context) <-chan model.Trajectory {
	out := make(chan model.Trajectory)
	go func() {
		defer close(out)
		for {
			sub, err := g.store.PopSubmission(ctx)
			if err != nil {
				if errors.Is(err, store.ErrClosed) || ctx.Err() != nil {
					return
				}
				// Transient store failure. The stream outlives the
				// store's bad moments; only close and cancellation
				// end it.
				g.logger.Error(ctx, "dequeue failed, backing off", logger.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(g.retryDelay):
				}
				continue
			}

			fresh, err := g.Process(ctx, sub)
			if err != nil {
				// At-most-once: a submission that cannot be aggregated
				// is dropped, never re-queued.
				metrics.RecordSubmissionDropped()
				g.logger.Error(ctx, "submission dropped",
					logger.String("worker", sub.WorkerID),
					logger.String("name", sub.WorkerName),
					logger.Error(err),
				)
				continue
			}

			for _, tr := range fresh {
				select {
				case out <- tr:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Process aggregates one submission: it updates ratings for every seat
// and returns only the trajectories produced by the latest version.
func (g *Generator) Process(ctx context.Context, sub model.MatchSubmission) ([]model.Trajectory, error) {
	start := time.Now()
	defer func() {
		metrics.RecordSubmissionLatency(time.Since(start).Seconds())
	}()

	if sub.Seats() == 0 {
		return nil, fmt.Errorf("submission from %s has no seats", sub.WorkerID)
	}

	latest, err := g.store.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("read latest version: %w", err)
	}

	priors := make([]model.Rating, sub.Seats())
	for i, rec := range sub.Records {
		r, err := g.store.Rating(ctx, rec.Version)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("seat %d version %d: %w", i, rec.Version, ErrUnknownVersion)
			}
			return nil, fmt.Errorf("resolve rating for version %d: %w", rec.Version, err)
		}
		priors[i] = r
	}

	blue, orange := teams.Partition(priors, g.assign)
	newBlue, newOrange := g.rater.Update(blue, orange, sub.Result)
	posteriors := teams.Merge(newBlue, newOrange, sub.Seats(), g.assign)

	for version, avg := range rating.AverageByVersion(posteriors, sub.Records) {
		if err := g.store.SetRating(ctx, version, avg); err != nil {
			return nil, fmt.Errorf("write back rating for version %d: %w", version, err)
		}
	}

	var fresh []model.Trajectory
	for _, rec := range sub.Records {
		if rec.Version == latest {
			fresh = append(fresh, rec.Trajectory)
			metrics.RecordTrajectoryYielded()
		} else {
			metrics.RecordTrajectoryStale()
		}
	}

	metrics.RecordSubmissionProcessed()
	if depth, err := g.store.QueueLen(ctx); err == nil {
		metrics.UpdateRolloutQueueDepth(depth)
	}

	g.logger.Debug(ctx, "submission processed",
		logger.String("worker", sub.WorkerName),
		logger.Int("seats", sub.Seats()),
		logger.Int("fresh", len(fresh)),
		logger.Float64("result", sub.Result),
	)
	return fresh, nil
}

// UpdateParameters publishes new weights as the next version. Every
// saveEvery-th version is also snapshotted into the opponent pool.
func (g *Generator) UpdateParameters(ctx context.Context, params []byte) error {
	current, err := g.store.Version(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("read version: %w", err)
		}
		current = model.BaselineVersion
	}
	next := current + 1

	if err := g.store.SetModel(ctx, params); err != nil {
		return fmt.Errorf("publish model: %w", err)
	}
	if err := g.store.SetVersion(ctx, next); err != nil {
		return fmt.Errorf("publish version: %w", err)
	}

	seed, err := g.seedRating(ctx)
	if err != nil {
		return err
	}
	if err := g.store.AppendRating(ctx, seed); err != nil {
		return fmt.Errorf("append rating for version %d: %w", next, err)
	}

	metrics.RecordModelPublish()
	metrics.UpdateModelVersion(next)

	if next%g.saveEvery == 0 {
		if err := g.store.AppendOpponent(ctx, model.ModelSnapshot{Version: next, Blob: params}); err != nil {
			return fmt.Errorf("snapshot version %d: %w", next, err)
		}
		metrics.RecordSnapshotSaved()
		if versions, err := g.store.OpponentVersions(ctx); err == nil {
			metrics.UpdateOpponentPoolSize(len(versions))
		}
	}

	g.logger.Info(ctx, "model published",
		logger.Int("version", next),
		logger.String("digest", codec.Digest(params)),
		logger.Any("snapshotted", next%g.saveEvery == 0),
	)
	return nil
}

// seedRating derives the initial rating for a new version.
func (g *Generator) seedRating(ctx context.Context) (model.Rating, error) {
	if g.seedPolicy == SeedAnchor {
		return g.anchor, nil
	}

	ratings, err := g.store.Ratings(ctx)
	if err != nil {
		return model.Rating{}, fmt.Errorf("read ratings: %w", err)
	}
	if len(ratings) == 0 {
		return g.anchor, nil
	}
	// Continuity: inherit the newest mu but keep the seed uncertainty,
	// since nothing has been observed about this version yet.
	return model.Rating{Mu: ratings[len(ratings)-1].Mu, Sigma: g.anchor.Sigma}, nil
}
