package selection

import "math/rand"

// Option applies a configuration option to the Policy.
type Option func(*Policy)

// WithRand sets the random source, mainly for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(p *Policy) {
		if rng != nil {
			p.rng = rng
		}
	}
}
