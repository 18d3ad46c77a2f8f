// Package rating computes two-team skill rating updates from match
// outcomes. It is pure computation with no I/O.
package rating

import (
	"math"

	"github.com/okian/scrim/internal/domain/model"
)

// Default rating environment constants.
const (
	defaultBeta     = 25.0 / 6.0   // performance variance per player
	defaultTau      = 25.0 / 300.0 // additive dynamics per update
	defaultDrawProb = 0.1
)

// denomFloor guards divisions by vanishing normal tails.
const denomFloor = 2.2e-162

// Service updates team ratings using the two-team TrueSkill closed form.
// A positive result ranks blue first, zero is a draw, and a negative
// result is handled symmetrically by swapping the teams.
type Service struct {
	beta     float64
	tau      float64
	drawProb float64
}

// New creates a rating service with configuration options.
func New(opts ...Option) *Service {
	s := &Service{
		beta:     defaultBeta,
		tau:      defaultTau,
		drawProb: defaultDrawProb,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Update returns posterior ratings for both teams given a signed result.
// Input slices are not mutated; outputs are index-aligned with inputs.
func (s *Service) Update(blue, orange []model.Rating, result float64) (newBlue, newOrange []model.Rating) {
	if result >= 0 {
		return s.rate(blue, orange, result == 0)
	}
	o, b := s.rate(orange, blue, false)
	return b, o
}

// rate applies the update with `winner` ranked first. When draw is set
// the teams are ranked equal.
func (s *Service) rate(winner, loser []model.Rating, draw bool) ([]model.Rating, []model.Rating) {
	n := len(winner) + len(loser)
	if n == 0 {
		return nil, nil
	}

	// Dynamics: inflate uncertainty before the update so ratings can
	// keep moving even after many matches.
	wVar := inflate(winner, s.tau)
	lVar := inflate(loser, s.tau)

	var muW, muL, varSum float64
	for i, r := range winner {
		muW += r.Mu
		varSum += wVar[i]
	}
	for i, r := range loser {
		muL += r.Mu
		varSum += lVar[i]
	}

	c := math.Sqrt(varSum + float64(n)*s.beta*s.beta)
	eps := drawMargin(s.drawProb, s.beta, n) / c
	t := (muW - muL) / c

	var v, w float64
	if draw {
		v = vWithinMargin(t, eps)
		w = wWithinMargin(t, eps)
	} else {
		v = vExceedsMargin(t, eps)
		w = wExceedsMargin(t, eps)
	}

	newWinner := apply(winner, wVar, c, v, w, +1)
	newLoser := apply(loser, lVar, c, v, w, -1)
	return newWinner, newLoser
}

// inflate returns per-player variances with dynamics applied.
func inflate(team []model.Rating, tau float64) []float64 {
	vars := make([]float64, len(team))
	for i, r := range team {
		vars[i] = r.Sigma*r.Sigma + tau*tau
	}
	return vars
}

// apply produces posterior ratings for one team. direction is +1 for
// the team ranked first and -1 for the other.
func apply(team []model.Rating, variance []float64, c, v, w, direction float64) []model.Rating {
	out := make([]model.Rating, len(team))
	for i, r := range team {
		meanMult := variance[i] / c
		varMult := variance[i] / (c * c)
		out[i] = model.Rating{
			Mu:    r.Mu + direction*meanMult*v,
			Sigma: math.Sqrt(variance[i] * (1 - w*varMult)),
		}
	}
	return out
}

// AverageByVersion groups per-seat posterior ratings by the version
// that produced each seat and averages mu and sigma within each group.
// The baseline version is never present in the output: its rating is a
// fixed anchor. posteriors must be index-aligned with records.
func AverageByVersion(posteriors []model.Rating, records []model.RolloutRecord) map[int]model.Rating {
	grouped := make(map[int][]model.Rating)
	for i, rec := range records {
		grouped[rec.Version] = append(grouped[rec.Version], posteriors[i])
	}
	delete(grouped, model.BaselineVersion)

	averaged := make(map[int]model.Rating, len(grouped))
	for version, ratings := range grouped {
		var mu, sigma float64
		for _, r := range ratings {
			mu += r.Mu
			sigma += r.Sigma
		}
		count := float64(len(ratings))
		averaged[version] = model.Rating{Mu: mu / count, Sigma: sigma / count}
	}
	return averaged
}

// drawMargin converts a draw probability into the performance margin
// within which a match counts as drawn.
func drawMargin(drawProb, beta float64, players int) float64 {
	return normInv((drawProb+1)/2) * math.Sqrt(float64(players)) * beta
}

// Truncated gaussian correction functions for the two-team update.

func vExceedsMargin(t, eps float64) float64 {
	denom := normCDF(t - eps)
	if denom < denomFloor {
		return -t + eps
	}
	return normPDF(t-eps) / denom
}

func wExceedsMargin(t, eps float64) float64 {
	denom := normCDF(t - eps)
	if denom < denomFloor {
		if t < 0 {
			return 1
		}
		return 0
	}
	v := vExceedsMargin(t, eps)
	return v * (v + t - eps)
}

func vWithinMargin(t, eps float64) float64 {
	tAbs := math.Abs(t)
	denom := normCDF(eps-tAbs) - normCDF(-eps-tAbs)
	if denom < denomFloor {
		if t < 0 {
			return -t - eps
		}
		return -t + eps
	}
	v := (normPDF(-eps-tAbs) - normPDF(eps-tAbs)) / denom
	if t < 0 {
		return -v
	}
	return v
}

func wWithinMargin(t, eps float64) float64 {
	tAbs := math.Abs(t)
	denom := normCDF(eps-tAbs) - normCDF(-eps-tAbs)
	if denom < denomFloor {
		return 1
	}
	v := vWithinMargin(tAbs, eps)
	return v*v + ((eps-tAbs)*normPDF(eps-tAbs)-(-eps-tAbs)*normPDF(-eps-tAbs))/denom
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// normInv is the inverse standard normal CDF.
func normInv(p float64) float64 {
	return -math.Sqrt2 * math.Erfinv(1-2*p)
}
