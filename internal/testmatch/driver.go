package testmatch

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/okian/scrim/internal/adapters/store"
	"github.com/okian/scrim/internal/learner"
	"github.com/okian/scrim/internal/worker"
	"github.com/okian/scrim/pkg/logger"
)

// Config holds the knobs for one end-to-end smoke run.
type Config struct {
	Workers         int
	Seats           int
	CurrentProb     float64
	SaveEvery       int
	PublishInterval time.Duration
	Trajectories    int
	Seed            int64
	Verbose         bool
}

// Run spins up an in-process training loop: one generator, the
// configured number of workers, and a publisher ticking synthetic
// parameters. It returns once the target trajectory count is consumed.
func Run(ctx context.Context, cfg *Config) error {
	log := logger.Get().Named("test-match")

	st := store.NewMemory()
	defer func() { _ = st.Close() }()

	gen, err := learner.New(ctx, st, learner.WithSaveEvery(cfg.SaveEvery))
	if err != nil {
		return fmt.Errorf("create generator: %w", err)
	}

	// First publish before any worker starts, so nobody polls for long.
	version := 1
	if err := gen.UpdateParameters(ctx, Params(version)); err != nil {
		return fmt.Errorf("initial publish: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := make([]*worker.Worker, cfg.Workers)
	for i := range workers {
		workers[i] = worker.New(st, NewEnv(cfg.Seed+int64(i)), Factory{},
			worker.WithName(fmt.Sprintf("test-worker-%d", i)),
			worker.WithSeats(cfg.Seats),
			worker.WithCurrentProb(cfg.CurrentProb),
			worker.WithRand(rand.New(rand.NewSource(cfg.Seed+int64(i)))),
		)
		go workers[i].Run(runCtx)
	}

	// Publisher: a stand-in for the training step.
	go func() {
		ticker := time.NewTicker(cfg.PublishInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				version++
				if err := gen.UpdateParameters(runCtx, Params(version)); err != nil {
					log.Error(runCtx, "publish failed", logger.Error(err))
				}
			}
		}
	}()

	start := time.Now()
	consumed := 0
	for range gen.Rollouts(runCtx) {
		consumed++
		if cfg.Verbose && consumed%100 == 0 {
			log.Info(runCtx, "progress", logger.Int("trajectories", consumed))
		}
		if consumed >= cfg.Trajectories {
			break
		}
	}
	cancel()

	for _, w := range workers {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.Shutdown(sctx); err != nil {
			log.Warn(ctx, "worker shutdown", logger.Error(err))
		}
		scancel()
	}

	if consumed < cfg.Trajectories {
		return fmt.Errorf("stopped after %d of %d trajectories: %w", consumed, cfg.Trajectories, ctx.Err())
	}

	elapsed := time.Since(start)
	pool, _ := st.OpponentVersions(context.Background())
	ratings, _ := st.Ratings(context.Background())

	fmt.Fprintf(os.Stdout, "consumed %d trajectories in %s (%.0f/s)\n",
		consumed, elapsed.Round(time.Millisecond), float64(consumed)/elapsed.Seconds())
	fmt.Fprintf(os.Stdout, "published versions: %d, opponent pool: %v\n", len(ratings)-1, pool)
	for v, r := range ratings {
		fmt.Fprintf(os.Stdout, "  v%-3d mu=%+.3f sigma=%.3f\n", v, r.Mu, r.Sigma)
	}
	return nil
}
