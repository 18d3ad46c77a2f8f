// Package testmatch provides a deterministic stand-in for the external
// simulator. It backs tests, cmd/test-match, and the worker role of the
// main binary; real integrations bind their own environment to the sim
// interfaces instead.
package testmatch

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"

	"github.com/okian/scrim/internal/domain/model"
	"github.com/okian/scrim/internal/domain/sim"
)

// Episode shape constants.
const (
	episodeSteps   = 8
	observationDim = 4
)

// Env is a fake simulator. Each episode drives every agent through a
// fixed number of steps and produces a signed result from the agents'
// accumulated action magnitudes plus noise.
type Env struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEnv creates a fake environment with a seeded random source.
func NewEnv(seed int64) *Env {
	return &Env{rng: rand.New(rand.NewSource(seed))}
}

// RunEpisode implements sim.Env.
func (e *Env) RunEpisode(ctx context.Context, agents []sim.Agent) ([]model.Trajectory, float64, error) {
	if len(agents) == 0 {
		return nil, 0, fmt.Errorf("no agents")
	}

	trajectories := make([]model.Trajectory, len(agents))
	scores := make([]float64, len(agents))

	for i, agent := range agents {
		var buf bytes.Buffer
		for step := 0; step < episodeSteps; step++ {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}

			obs := e.observation(step)
			action, err := agent.Act(ctx, obs)
			if err != nil {
				return nil, 0, fmt.Errorf("agent %d step %d: %w", i, step, err)
			}

			for _, a := range action {
				scores[i] += a
				if err := binary.Write(&buf, binary.LittleEndian, a); err != nil {
					return nil, 0, err
				}
			}
		}
		trajectories[i] = buf.Bytes()
	}

	// Blue is the first half by submission-order convention.
	blueSeats := (len(agents) + 1) / 2
	var result float64
	for i, s := range scores {
		if i < blueSeats {
			result += s
		} else {
			result -= s
		}
	}
	result += e.noise()

	return trajectories, result, nil
}

func (e *Env) observation(step int) []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	obs := make([]float64, observationDim)
	for i := range obs {
		obs[i] = e.rng.Float64() + float64(step)
	}
	return obs
}

func (e *Env) noise() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.NormFloat64() * 0.1
}
