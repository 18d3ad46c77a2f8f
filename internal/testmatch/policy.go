package testmatch

import (
	"bytes"
	"context"
	"fmt"

	"github.com/okian/scrim/internal/domain/sim"
)

// paramsMagic prefixes blobs produced by Params so Factory can reject
// garbage instead of silently building a policy from it.
var paramsMagic = []byte("scrim-params:")

// Params builds a synthetic, deterministic parameter blob for a
// version. Repetition keeps it compressible, like real weight tensors.
func Params(version int) []byte {
	payload := fmt.Sprintf("%sv%08d;", paramsMagic, version)
	return bytes.Repeat([]byte(payload), 64)
}

// Factory builds echo policies from parameter blobs.
type Factory struct{}

// Load implements sim.PolicyFactory.
func (Factory) Load(blob []byte) (sim.Agent, error) {
	if !bytes.HasPrefix(blob, paramsMagic) {
		return nil, fmt.Errorf("unrecognized parameter blob (%d bytes)", len(blob))
	}
	return &echoPolicy{weight: float64(len(blob)%7) + 1}, nil
}

// echoPolicy scales the observation by a blob-derived weight. Enough
// behavior to make episodes depend on which model sits in each seat.
type echoPolicy struct {
	weight float64
}

func (p *echoPolicy) Act(_ context.Context, observation []float64) ([]float64, error) {
	action := make([]float64, len(observation))
	for i, o := range observation {
		action[i] = o * p.weight / 100
	}
	return action, nil
}
