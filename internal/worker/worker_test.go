package worker_test

import (
	"context"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/scrim/internal/adapters/store"
	"github.com/okian/scrim/internal/domain/model"
	"github.com/okian/scrim/internal/testmatch"
	"github.com/okian/scrim/internal/worker"
	"github.com/okian/scrim/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// publish wires a model version directly into the store the way the
// learner would: weights, counter, and one rating per version.
func publish(ctx context.Context, st *store.Memory, version int) {
	if err := st.SetModel(ctx, testmatch.Params(version)); err != nil {
		panic(err)
	}
	if err := st.SetVersion(ctx, version); err != nil {
		panic(err)
	}
}

func seedRatings(ctx context.Context, st *store.Memory, upTo int) {
	for v := 0; v <= upTo; v++ {
		if err := st.AppendRating(ctx, model.Rating{Mu: float64(v), Sigma: 25.0 / 3.0}); err != nil {
			panic(err)
		}
	}
}

func TestWorker_PlayOnce(t *testing.T) {
	convey.Convey("Given a store with one published model", t, func() {
		ctx := context.Background()
		st := store.NewMemory()
		defer func() { _ = st.Close() }()

		seedRatings(ctx, st, 1)
		publish(ctx, st, 1)

		w := worker.New(st, testmatch.NewEnv(1), testmatch.Factory{},
			worker.WithName("bench-1"),
			worker.WithRand(rand.New(rand.NewSource(1))),
		)

		convey.Convey("When one match is played", func() {
			err := w.PlayOnce(ctx)

			convey.Convey("Then a two-seat submission lands on the queue", func() {
				convey.So(err, convey.ShouldBeNil)

				sub, err := st.PopSubmission(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(sub.Seats(), convey.ShouldEqual, 2)
				convey.So(sub.WorkerID, convey.ShouldEqual, w.ID())
				convey.So(sub.WorkerName, convey.ShouldEqual, "bench-1")
				for _, rec := range sub.Records {
					convey.So(rec.Version, convey.ShouldEqual, 1)
					convey.So(rec.Trajectory, convey.ShouldNotBeEmpty)
				}
			})
		})
	})
}

func TestWorker_WaitsForModel(t *testing.T) {
	convey.Convey("Given a store with no model yet", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		st := store.NewMemory()
		defer func() { _ = st.Close() }()

		w := worker.New(st, testmatch.NewEnv(2), testmatch.Factory{},
			worker.WithPollDelay(10*time.Millisecond),
		)

		convey.Convey("When a match starts before any publish", func() {
			errCh := make(chan error, 1)
			go func() { errCh <- w.PlayOnce(ctx) }()

			convey.Convey("Then it blocks until a model appears", func() {
				select {
				case <-errCh:
					convey.So("finished before any model was published", convey.ShouldBeEmpty)
				case <-time.After(50 * time.Millisecond):
				}

				seedRatings(ctx, st, 1)
				publish(ctx, st, 1)

				select {
				case err := <-errCh:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(2 * time.Second):
					convey.So("timed out waiting for the match", convey.ShouldBeEmpty)
				}

				depth, err := st.QueueLen(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(depth, convey.ShouldEqual, 1)
			})
		})
	})
}

func TestWorker_SelfPlayFallback(t *testing.T) {
	convey.Convey("Given a published model but an empty opponent pool", t, func() {
		ctx := context.Background()
		st := store.NewMemory()
		defer func() { _ = st.Close() }()

		seedRatings(ctx, st, 1)
		publish(ctx, st, 1)

		// current_prob 0.5 over two seats forces every non-guaranteed
		// seat to look for an opponent.
		w := worker.New(st, testmatch.NewEnv(3), testmatch.Factory{},
			worker.WithCurrentProb(0.5),
			worker.WithRand(rand.New(rand.NewSource(3))),
		)

		convey.Convey("When matches are played", func() {
			for i := 0; i < 10; i++ {
				convey.So(w.PlayOnce(ctx), convey.ShouldBeNil)
			}

			convey.Convey("Then every seat self-plays the current version", func() {
				for i := 0; i < 10; i++ {
					sub, err := st.PopSubmission(ctx)
					convey.So(err, convey.ShouldBeNil)
					for _, rec := range sub.Records {
						convey.So(rec.Version, convey.ShouldEqual, 1)
					}
				}
			})
		})
	})
}

func TestWorker_CurrentModelFraction(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical test")
	}

	convey.Convey("Given a pool with one snapshot and the latest at v3", t, func() {
		ctx := context.Background()
		st := store.NewMemory()
		defer func() { _ = st.Close() }()

		seedRatings(ctx, st, 3)
		convey.So(st.AppendOpponent(ctx, model.ModelSnapshot{Version: 2, Blob: testmatch.Params(2)}), convey.ShouldBeNil)
		publish(ctx, st, 3)

		w := worker.New(st, testmatch.NewEnv(4), testmatch.Factory{},
			worker.WithSeats(3),
			worker.WithCurrentProb(0.9),
			worker.WithRand(rand.New(rand.NewSource(4))),
		)

		convey.Convey("When many matches are played", func() {
			const matches = 3000
			for i := 0; i < matches; i++ {
				convey.So(w.PlayOnce(ctx), convey.ShouldBeNil)
			}

			convey.Convey("Then the current-model seat fraction matches the target", func() {
				current, total := 0, 0
				for i := 0; i < matches; i++ {
					sub, err := st.PopSubmission(ctx)
					convey.So(err, convey.ShouldBeNil)
					for _, rec := range sub.Records {
						total++
						if rec.Version == 3 {
							current++
						}
					}
				}
				fraction := float64(current) / float64(total)
				convey.So(fraction, convey.ShouldAlmostEqual, 0.9, 0.02)
			})
		})
	})
}

// quietLogger records error messages so tests can assert on them.
type quietLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *quietLogger) Info(context.Context, string, ...logger.Field)  {}
func (l *quietLogger) Debug(context.Context, string, ...logger.Field) {}
func (l *quietLogger) Warn(context.Context, string, ...logger.Field)  {}
func (l *quietLogger) Fatal(context.Context, string, ...logger.Field) {}
func (l *quietLogger) Named(string) logger.Logger                     { return l }

func (l *quietLogger) Error(_ context.Context, msg string, _ ...logger.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *quietLogger) recorded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

func TestWorker_ShutdownIsNotAMatchError(t *testing.T) {
	convey.Convey("Given a worker blocked waiting for a model", t, func() {
		ctx := context.Background()
		st := store.NewMemory()
		defer func() { _ = st.Close() }()

		log := &quietLogger{}
		w := worker.New(st, testmatch.NewEnv(6), testmatch.Factory{},
			worker.WithPollDelay(10*time.Millisecond),
			worker.WithLogger(log),
		)
		go w.Run(ctx)
		time.Sleep(30 * time.Millisecond)

		convey.Convey("When it is shut down mid-wait", func() {
			sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)

			convey.Convey("Then no match failure is reported", func() {
				convey.So(log.recorded(), convey.ShouldBeEmpty)
			})
		})
	})
}

func TestWorker_RunAndShutdown(t *testing.T) {
	convey.Convey("Given a worker running against an empty store", t, func() {
		ctx := context.Background()
		st := store.NewMemory()
		defer func() { _ = st.Close() }()

		w := worker.New(st, testmatch.NewEnv(5), testmatch.Factory{},
			worker.WithPollDelay(10*time.Millisecond),
		)
		go w.Run(ctx)

		convey.Convey("When it starts", func() {
			deadline := time.Now().Add(2 * time.Second)
			var ids []string
			for time.Now().Before(deadline) {
				var err error
				ids, err = st.Workers(ctx)
				convey.So(err, convey.ShouldBeNil)
				if len(ids) > 0 {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}

			convey.Convey("Then it registers its identity", func() {
				convey.So(ids, convey.ShouldContain, w.ID())
			})

			convey.Convey("And shutdown returns promptly", func() {
				sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
				defer cancel()
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})
}
