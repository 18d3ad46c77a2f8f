package learner

import (
	"time"

	"github.com/okian/scrim/internal/domain/model"
	"github.com/okian/scrim/internal/domain/rating"
	"github.com/okian/scrim/internal/domain/teams"
	"github.com/okian/scrim/pkg/logger"
)

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithSaveEvery sets the snapshot cadence: every n-th published version
// joins the opponent pool.
func WithSaveEvery(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.saveEvery = n
		}
	}
}

// WithSeedPolicy sets how new versions get their initial rating.
func WithSeedPolicy(p SeedPolicy) Option {
	return func(g *Generator) {
		g.seedPolicy = p
	}
}

// WithAnchor sets the baseline rating used for version 0 and as the
// uncertainty of freshly seeded versions.
func WithAnchor(r model.Rating) Option {
	return func(g *Generator) {
		if r.Sigma > 0 {
			g.anchor = r
		}
	}
}

// WithRater sets the skill rating service.
func WithRater(r *rating.Service) Option {
	return func(g *Generator) {
		if r != nil {
			g.rater = r
		}
	}
}

// WithAssigner sets the seat-to-team assignment rule. It must match
// on every consumer of the same queue or team ratings drift.
func WithAssigner(a teams.Assigner) Option {
	return func(g *Generator) {
		if a != nil {
			g.assign = a
		}
	}
}

// WithRetryDelay sets the wait before re-polling the queue after a
// transient dequeue failure.
func WithRetryDelay(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.retryDelay = d
		}
	}
}

// WithClear wipes every coordination key from the store before the
// generator seeds it, discarding queued rollouts and all ratings.
func WithClear() Option {
	return func(g *Generator) {
		g.clear = true
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}
