// Package selection picks opponents from the rated pool.
//
// Sampling is proportional to a softmax over mu / ln(10): stronger
// historical opponents are favoured while weaker ones keep a nonzero
// chance of being revisited.
package selection

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/okian/scrim/internal/domain/model"
)

// temperature tunes softmax sharpness.
var temperature = math.Log(10)

// Policy samples opponent indices from a rating population.
type Policy struct {
	rng *rand.Rand
}

// New creates a selection policy with configuration options.
func New(opts ...Option) *Policy {
	p := &Policy{}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Select returns an index into ratings together with its sampling
// probability. An empty population returns ErrEmptyPool so callers can
// fall back to self-play against the current model.
func (p *Policy) Select(ratings []model.Rating) (int, float64, error) {
	probs, err := Probabilities(ratings)
	if err != nil {
		return 0, 0, err
	}

	r := p.random()
	cum := 0.0
	for i, prob := range probs {
		cum += prob
		if r < cum {
			return i, prob, nil
		}
	}
	// Float round-off can leave the cumulative sum fractionally below 1.
	last := len(probs) - 1
	return last, probs[last], nil
}

// Probabilities returns the softmax distribution used by Select.
func Probabilities(ratings []model.Rating) ([]float64, error) {
	if len(ratings) == 0 {
		return nil, ErrEmptyPool
	}

	scaled := make([]float64, len(ratings))
	for i, r := range ratings {
		scaled[i] = r.Mu / temperature
	}

	// Shift by the max before exponentiating to keep the sum finite.
	shift := floats.Max(scaled)
	for i := range scaled {
		scaled[i] = math.Exp(scaled[i] - shift)
	}
	floats.Scale(1/floats.Sum(scaled), scaled)
	return scaled, nil
}

func (p *Policy) random() float64 {
	if p.rng != nil {
		return p.rng.Float64()
	}
	return rand.Float64()
}
