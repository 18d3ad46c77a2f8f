// Package worker runs the rollout side of the training loop: one
// long-lived process playing one match at a time and publishing the
// results through the coordination store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/okian/scrim/internal/adapters/codec"
	"github.com/okian/scrim/internal/adapters/store"
	"github.com/okian/scrim/internal/domain/model"
	"github.com/okian/scrim/internal/domain/selection"
	"github.com/okian/scrim/internal/domain/sim"
	"github.com/okian/scrim/pkg/logger"
	"github.com/okian/scrim/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultSeats       = 2
	defaultCurrentProb = 0.9
	defaultPollDelay   = time.Second
)

// Worker is a single-match-in-flight rollout producer. Each iteration
// walks wait-for-model, select-opponents, play-match, publish; the
// wait-for-model poll is the only retry point and is never fatal.
type Worker struct {
	store    store.Store
	env      sim.Env
	policies sim.PolicyFactory
	selector *selection.Policy

	id          string
	name        string
	seats       int
	currentProb float64
	pollDelay   time.Duration
	rng         *rand.Rand

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// seat pairs the model one seat plays with the version it came from.
type seat struct {
	blob    []byte
	version int
}

// New creates a worker with configuration options.
func New(st store.Store, env sim.Env, policies sim.PolicyFactory, opts ...Option) *Worker {
	w := &Worker{
		store:       st,
		env:         env,
		policies:    policies,
		selector:    selection.New(),
		id:          uuid.NewString(),
		name:        "worker",
		seats:       defaultSeats,
		currentProb: defaultCurrentProb,
		pollDelay:   defaultPollDelay,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// ID returns the worker's registered identity.
func (w *Worker) ID() string {
	return w.id
}

// Run registers the worker and loops until ctx is canceled or Shutdown
// is called. There is no other termination condition.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	if err := w.store.RegisterWorker(ctx, w.id); err != nil {
		// Registration is observational; a failed append is not worth
		// refusing to produce rollouts over.
		w.logger.Warn(ctx, "worker registration failed", logger.Error(err))
	}
	w.logger.Info(ctx, "worker started",
		logger.String("id", w.id),
		logger.String("name", w.name),
		logger.Int("seats", w.seats),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		default:
		}

		if err := w.PlayOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-w.shutdown:
				// Shutdown interrupted the match; not a failure.
				return
			default:
			}
			metrics.RecordMatchError()
			w.logger.Error(ctx, "match failed", logger.Error(err))
		}
	}
}

// Shutdown stops the loop and waits for the in-flight match.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// PlayOnce runs a single iteration of the worker state machine.
func (w *Worker) PlayOnce(ctx context.Context) error {
	blob, version, err := w.waitForModel(ctx)
	if err != nil {
		return err
	}

	seats, err := w.selectSeats(ctx, blob, version)
	if err != nil {
		return err
	}

	agents := make([]sim.Agent, len(seats))
	for i, st := range seats {
		agent, err := w.policies.Load(st.blob)
		if err != nil {
			return fmt.Errorf("load policy for seat %d (v%d): %w", i, st.version, err)
		}
		agents[i] = agent
	}

	start := time.Now()
	trajectories, result, err := w.env.RunEpisode(ctx, agents)
	if err != nil {
		return fmt.Errorf("episode: %w", err)
	}
	metrics.RecordMatchDuration(time.Since(start).Seconds())
	if len(trajectories) != len(seats) {
		return fmt.Errorf("episode returned %d trajectories for %d seats", len(trajectories), len(seats))
	}

	records := make([]model.RolloutRecord, len(seats))
	for i, st := range seats {
		records[i] = model.RolloutRecord{Trajectory: trajectories[i], Version: st.version}
	}

	sub := model.MatchSubmission{
		Records:    records,
		WorkerID:   w.id,
		WorkerName: w.name,
		Result:     result,
	}
	if err := w.store.PushSubmission(ctx, sub); err != nil {
		return fmt.Errorf("publish submission: %w", err)
	}

	metrics.RecordMatchPlayed()
	w.logger.Debug(ctx, "match published",
		logger.Int("version", version),
		logger.Float64("result", result),
	)
	return nil
}

// waitForModel polls the store until a model is published. Transient
// unavailability is logged and retried with a fixed delay, never
// surfaced.
func (w *Worker) waitForModel(ctx context.Context) ([]byte, int, error) {
	for {
		blob, err := w.store.Model(ctx)
		if err == nil {
			version, verr := w.store.Version(ctx)
			if verr == nil {
				w.logger.Debug(ctx, "model refreshed",
					logger.Int("version", version),
					logger.String("digest", codec.Digest(blob)),
				)
				return blob, version, nil
			}
			err = verr
		}
		if !errors.Is(err, store.ErrNotFound) {
			w.logger.Warn(ctx, "store unavailable, backing off", logger.Error(err))
		}
		metrics.RecordModelWaitRetry()

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-w.shutdown:
			return nil, 0, context.Canceled
		case <-time.After(w.pollDelay):
		}
	}
}

// selectSeats builds the lineup for one match. The first seat always
// plays the current model; the remaining seats play it with the
// adjusted probability so the expected fraction of current-model seats
// across the whole match equals currentProb. Seat order is shuffled so
// the guaranteed seat is not positionally biased toward one team.
func (w *Worker) selectSeats(ctx context.Context, blob []byte, version int) ([]seat, error) {
	seats := make([]seat, 0, w.seats)
	seats = append(seats, seat{blob: blob, version: version})

	if w.seats > 1 {
		adjusted := adjustedProb(w.currentProb, w.seats)
		for i := 1; i < w.seats; i++ {
			if w.random() < adjusted {
				seats = append(seats, seat{blob: blob, version: version})
				continue
			}
			opp, err := w.pickOpponent(ctx)
			if err != nil {
				if errors.Is(err, selection.ErrEmptyPool) {
					// No snapshots published yet: self-play only.
					seats = append(seats, seat{blob: blob, version: version})
					continue
				}
				return nil, err
			}
			seats = append(seats, opp)
		}
	}

	w.shuffle(seats)
	return seats, nil
}

// pickOpponent samples a snapshot from the pool via the softmax policy.
func (w *Worker) pickOpponent(ctx context.Context) (seat, error) {
	versions, err := w.store.OpponentVersions(ctx)
	if err != nil {
		return seat{}, fmt.Errorf("read pool: %w", err)
	}
	if len(versions) == 0 {
		return seat{}, selection.ErrEmptyPool
	}

	ratings, err := w.store.Ratings(ctx)
	if err != nil {
		return seat{}, fmt.Errorf("read ratings: %w", err)
	}

	pool := make([]model.Rating, len(versions))
	for i, v := range versions {
		if v < 0 || v >= len(ratings) {
			return seat{}, fmt.Errorf("pool version %d has no rating", v)
		}
		pool[i] = ratings[v]
	}

	index, prob, err := w.selector.Select(pool)
	if err != nil {
		return seat{}, err
	}

	snap, err := w.store.Opponent(ctx, index)
	if err != nil {
		return seat{}, fmt.Errorf("fetch opponent %d: %w", index, err)
	}

	w.logger.Debug(ctx, "opponent selected",
		logger.Int("version", snap.Version),
		logger.Float64("prob", prob),
	)
	return seat{blob: snap.Blob, version: snap.Version}, nil
}

// adjustedProb spreads the guaranteed current seat across N seats so
// the overall current-model fraction stays at p exactly.
func adjustedProb(p float64, n int) float64 {
	adj := (p*float64(n) - 1) / (float64(n) - 1)
	if adj < 0 {
		return 0
	}
	return adj
}

func (w *Worker) random() float64 {
	if w.rng != nil {
		return w.rng.Float64()
	}
	return rand.Float64()
}

func (w *Worker) shuffle(seats []seat) {
	swap := func(i, j int) { seats[i], seats[j] = seats[j], seats[i] }
	if w.rng != nil {
		w.rng.Shuffle(len(seats), swap)
		return
	}
	rand.Shuffle(len(seats), swap)
}
