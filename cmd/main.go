package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/scrim/internal/adapters/codec"
	"github.com/okian/scrim/internal/adapters/store"
	"github.com/okian/scrim/internal/config"
	"github.com/okian/scrim/internal/learner"
	"github.com/okian/scrim/internal/testmatch"
	"github.com/okian/scrim/internal/worker"
	"github.com/okian/scrim/pkg/logger"
	"github.com/okian/scrim/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	sharedMetricsInterval = 5 * time.Second
)

func main() {
	role := flag.String("role", "learner", "Process role: learner or worker")
	wipe := flag.Bool("clear", false, "Wipe all coordination keys before starting (learner only)")
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	st, err := newStore(cfg)
	if err != nil {
		log.Error(ctx, "store initialization failed", logger.Error(err))
		return
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	srv := startMetricsServer(ctx, cfg.MetricsAddr, log)
	go startSharedMetricsUpdater(ctx, st)

	switch *role {
	case "learner":
		err = runLearner(ctx, cfg, st, *wipe, log)
	case "worker":
		err = runWorker(ctx, cfg, st, log)
	default:
		log.Error(ctx, "unknown role", logger.String("role", *role))
		return
	}
	if err != nil && ctx.Err() == nil {
		log.Error(ctx, "process failed", logger.Error(err))
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "metrics server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "stopped")
}

// newStore builds the coordination store selected by configuration.
func newStore(cfg *config.Config) (store.Store, error) {
	c, err := newCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}

	switch cfg.StoreBackend {
	case "couchbase":
		return store.NewCouchbase(store.CouchbaseConfig{
			ConnStr:  cfg.CouchbaseConnStr,
			Username: cfg.CouchbaseUser,
			Password: cfg.CouchbasePassword,
			Bucket:   cfg.CouchbaseBucket,
		}, store.WithCouchbaseCodec(c))
	default:
		return store.NewMemory(store.WithCapacity(cfg.QueueCapacity), store.WithCodec(c)), nil
	}
}

// newCodec builds the configured serialization codec. Model blobs and
// trajectories are large and repetitive, so the compressing codec is
// the default.
func newCodec(name string) (codec.Codec, error) {
	if name == "gob" {
		return codec.NewGob(), nil
	}
	return codec.NewZstd(codec.NewGob())
}

// runLearner consumes the rollout queue until shutdown. Trajectories
// are counted and discarded; an embedding training process would range
// over Rollouts itself and call UpdateParameters after each step.
func runLearner(ctx context.Context, cfg *config.Config, st store.Store, wipe bool, log logger.Logger) error {
	opts := []learner.Option{
		learner.WithSaveEvery(cfg.SaveEvery),
	}
	if cfg.SeedPolicy == "anchor" {
		opts = append(opts, learner.WithSeedPolicy(learner.SeedAnchor))
	}
	if wipe {
		opts = append(opts, learner.WithClear())
	}

	gen, err := learner.New(ctx, st, opts...)
	if err != nil {
		return err
	}

	log.Info(ctx, "learner started",
		logger.String("backend", cfg.StoreBackend),
		logger.Int("save_every", cfg.SaveEvery),
	)

	var consumed int
	for range gen.Rollouts(ctx) {
		consumed++
		if consumed%1000 == 0 {
			log.Info(ctx, "trajectories consumed", logger.Int("count", consumed))
		}
	}
	return ctx.Err()
}

// runWorker plays matches until shutdown. The synthetic simulator
// stands in for the real environment; integrations embed the worker
// with their own sim.Env and sim.PolicyFactory bindings.
func runWorker(ctx context.Context, cfg *config.Config, st store.Store, log logger.Logger) error {
	w := worker.New(st, testmatch.NewEnv(time.Now().UnixNano()), testmatch.Factory{},
		worker.WithName(cfg.WorkerName),
		worker.WithSeats(cfg.Seats),
		worker.WithCurrentProb(cfg.CurrentProb),
		worker.WithPollDelay(time.Duration(cfg.PollDelayMS)*time.Millisecond),
	)

	log.Info(ctx, "worker started",
		logger.String("backend", cfg.StoreBackend),
		logger.String("name", cfg.WorkerName),
	)

	w.Run(ctx)
	return ctx.Err()
}

// startMetricsServer serves the Prometheus registry on its own listener.
func startMetricsServer(ctx context.Context, addr string, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting metrics server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("metrics server failed: " + err.Error() + "\n")
		}
	}()
	return srv
}

// startSharedMetricsUpdater refreshes gauges derived from shared state.
func startSharedMetricsUpdater(ctx context.Context, st store.Store) {
	ticker := time.NewTicker(sharedMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := st.QueueLen(ctx); err == nil {
				metrics.UpdateRolloutQueueDepth(depth)
			}
			if workers, err := st.Workers(ctx); err == nil {
				metrics.UpdateRegisteredWorkers(len(workers))
			}
			if versions, err := st.OpponentVersions(ctx); err == nil {
				metrics.UpdateOpponentPoolSize(len(versions))
			}
		}
	}
}
