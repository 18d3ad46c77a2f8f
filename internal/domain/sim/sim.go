// Package sim declares the external simulator collaborators.
//
// The environment and the policies it drives live outside this module;
// workers only need enough surface to run one episode per iteration.
package sim

import (
	"context"

	"github.com/okian/scrim/internal/domain/model"
)

// Agent selects actions for one seat.
type Agent interface {
	// Act returns the action for the given observation.
	Act(ctx context.Context, observation []float64) ([]float64, error)
}

// PolicyFactory builds an Agent from a serialized model blob.
type PolicyFactory interface {
	Load(blob []byte) (Agent, error)
}

// Env runs full episodes. RunEpisode returns one trajectory per agent,
// index-aligned with the agents slice, plus the signed match result
// (positive favours blue, negative orange).
type Env interface {
	RunEpisode(ctx context.Context, agents []Agent) ([]model.Trajectory, float64, error)
}
