package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/scrim/internal/testmatch"
	"github.com/okian/scrim/pkg/logger"
)

// Default configuration constants.
const (
	defaultWorkers         = 4
	defaultSeats           = 2
	defaultCurrentProb     = 0.9
	defaultSaveEvery       = 5
	defaultPublishInterval = 200 * time.Millisecond
	defaultTrajectories    = 2000
	defaultTestTimeout     = 5 * time.Minute
)

func main() {
	var (
		workers         = flag.Int("workers", defaultWorkers, "Number of concurrent rollout workers")
		seats           = flag.Int("seats", defaultSeats, "Agent seats per match")
		currentProb     = flag.Float64("current-prob", defaultCurrentProb, "Target fraction of seats on the latest model")
		saveEvery       = flag.Int("save-every", defaultSaveEvery, "Snapshot cadence for the opponent pool")
		publishInterval = flag.Duration("publish-interval", defaultPublishInterval, "Delay between synthetic model publishes")
		trajectories    = flag.Int("trajectories", defaultTrajectories, "Trajectories to consume before stopping")
		seed            = flag.Int64("seed", 1, "Base random seed")
		verbose         = flag.Bool("verbose", false, "Enable progress logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	cfg := &testmatch.Config{
		Workers:         *workers,
		Seats:           *seats,
		CurrentProb:     *currentProb,
		SaveEvery:       *saveEvery,
		PublishInterval: *publishInterval,
		Trajectories:    *trajectories,
		Seed:            *seed,
		Verbose:         *verbose,
	}

	if err := testmatch.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("test failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
