package worker

import (
	"math/rand"
	"time"

	"github.com/okian/scrim/internal/domain/selection"
	"github.com/okian/scrim/pkg/logger"
)

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker name reported in submissions and logs.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
			w.logger = w.logger.Named(name)
		}
	}
}

// WithSeats sets the number of seats per match.
func WithSeats(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.seats = n
		}
	}
}

// WithCurrentProb sets the target fraction of seats playing the
// current model.
func WithCurrentProb(p float64) Option {
	return func(w *Worker) {
		if p > 0 && p <= 1 {
			w.currentProb = p
		}
	}
}

// WithPollDelay sets the fixed wait between model polls.
func WithPollDelay(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollDelay = d
		}
	}
}

// WithSelector sets the opponent selection policy.
func WithSelector(p *selection.Policy) Option {
	return func(w *Worker) {
		if p != nil {
			w.selector = p
		}
	}
}

// WithRand sets the random source, mainly for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(w *Worker) {
		if rng != nil {
			w.rng = rng
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}
