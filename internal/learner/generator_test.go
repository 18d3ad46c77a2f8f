package learner_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/scrim/internal/adapters/store"
	"github.com/okian/scrim/internal/domain/model"
	"github.com/okian/scrim/internal/learner"
	"github.com/okian/scrim/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestGenerator_New(t *testing.T) {
	convey.Convey("Given an empty store", t, func() {
		ctx := context.Background()
		st := store.NewMemory()
		defer func() { _ = st.Close() }()

		convey.Convey("When a generator is created", func() {
			_, err := learner.New(ctx, st)

			convey.Convey("Then the baseline rating is seeded", func() {
				convey.So(err, convey.ShouldBeNil)
				ratings, err := st.Ratings(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(ratings, convey.ShouldHaveLength, 1)
				convey.So(ratings[0].Mu, convey.ShouldEqual, 0)
				convey.So(ratings[0].Sigma, convey.ShouldAlmostEqual, 25.0/3.0)
			})
		})

		convey.Convey("When a second generator attaches to the same store", func() {
			_, err := learner.New(ctx, st)
			convey.So(err, convey.ShouldBeNil)
			_, err = learner.New(ctx, st)

			convey.Convey("Then the baseline is not seeded twice", func() {
				convey.So(err, convey.ShouldBeNil)
				ratings, err := st.Ratings(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(ratings, convey.ShouldHaveLength, 1)
			})
		})

		convey.Convey("When created with WithClear on a dirty store", func() {
			convey.So(st.SetModel(ctx, []byte("stale")), convey.ShouldBeNil)
			convey.So(st.SetVersion(ctx, 42), convey.ShouldBeNil)
			convey.So(st.AppendRating(ctx, model.Rating{Mu: 9, Sigma: 1}), convey.ShouldBeNil)

			_, err := learner.New(ctx, st, learner.WithClear())

			convey.Convey("Then only the fresh baseline remains", func() {
				convey.So(err, convey.ShouldBeNil)
				_, err := st.Version(ctx)
				convey.So(err, convey.ShouldEqual, store.ErrNotFound)
				ratings, err := st.Ratings(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(ratings, convey.ShouldHaveLength, 1)
				convey.So(ratings[0].Mu, convey.ShouldEqual, 0)
			})
		})
	})
}

func TestGenerator_UpdateParameters(t *testing.T) {
	convey.Convey("Given a generator with save-every of 10", t, func() {
		ctx := context.Background()
		st := store.NewMemory()
		defer func() { _ = st.Close() }()

		gen, err := learner.New(ctx, st, learner.WithSaveEvery(10))
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When parameters are published once", func() {
			convey.So(gen.UpdateParameters(ctx, []byte("weights-1")), convey.ShouldBeNil)

			convey.Convey("Then model, version, and rating advance together", func() {
				blob, err := st.Model(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(blob), convey.ShouldEqual, "weights-1")

				version, err := st.Version(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(version, convey.ShouldEqual, 1)

				ratings, err := st.Ratings(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(ratings, convey.ShouldHaveLength, 2)
			})

			convey.Convey("Then the pool is still empty before the cadence hits", func() {
				versions, err := st.OpponentVersions(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(versions, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When parameters are published 25 times", func() {
			for i := 0; i < 25; i++ {
				convey.So(gen.UpdateParameters(ctx, []byte{byte(i)}), convey.ShouldBeNil)
			}

			convey.Convey("Then every tenth version joins the opponent pool", func() {
				versions, err := st.OpponentVersions(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(versions, convey.ShouldResemble, []int{10, 20})

				snap, err := st.Opponent(ctx, 0)
				convey.So(err, convey.ShouldBeNil)
				convey.So(snap.Version, convey.ShouldEqual, 10)
				convey.So(snap.Blob, convey.ShouldResemble, []byte{9})
			})

			convey.Convey("Then every version got exactly one rating", func() {
				ratings, err := st.Ratings(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(ratings, convey.ShouldHaveLength, 26)
			})
		})
	})
}

func TestGenerator_SeedPolicies(t *testing.T) {
	convey.Convey("Given a store where version 1 already earned a high mu", t, func() {
		ctx := context.Background()

		setup := func(policy learner.SeedPolicy) (*learner.Generator, *store.Memory) {
			st := store.NewMemory()
			gen, err := learner.New(ctx, st, learner.WithSeedPolicy(policy))
			convey.So(err, convey.ShouldBeNil)
			convey.So(gen.UpdateParameters(ctx, []byte("w1")), convey.ShouldBeNil)
			convey.So(st.SetRating(ctx, 1, model.Rating{Mu: 7.5, Sigma: 2.0}), convey.ShouldBeNil)
			return gen, st
		}

		convey.Convey("When the latest policy publishes the next version", func() {
			gen, st := setup(learner.SeedLatest)
			defer func() { _ = st.Close() }()
			convey.So(gen.UpdateParameters(ctx, []byte("w2")), convey.ShouldBeNil)

			convey.Convey("Then the new rating inherits mu but not sigma", func() {
				r, err := st.Rating(ctx, 2)
				convey.So(err, convey.ShouldBeNil)
				convey.So(r.Mu, convey.ShouldAlmostEqual, 7.5)
				convey.So(r.Sigma, convey.ShouldAlmostEqual, 25.0/3.0)
			})
		})

		convey.Convey("When the anchor policy publishes the next version", func() {
			gen, st := setup(learner.SeedAnchor)
			defer func() { _ = st.Close() }()
			convey.So(gen.UpdateParameters(ctx, []byte("w2")), convey.ShouldBeNil)

			convey.Convey("Then the new rating restarts from the anchor", func() {
				r, err := st.Rating(ctx, 2)
				convey.So(err, convey.ShouldBeNil)
				convey.So(r.Mu, convey.ShouldEqual, 0)
				convey.So(r.Sigma, convey.ShouldAlmostEqual, 25.0/3.0)
			})
		})
	})
}

func TestGenerator_Process(t *testing.T) {
	convey.Convey("Given a generator with one published version", t, func() {
		ctx := context.Background()
		st := store.NewMemory()
		defer func() { _ = st.Close() }()

		gen, err := learner.New(ctx, st)
		convey.So(err, convey.ShouldBeNil)
		convey.So(gen.UpdateParameters(ctx, []byte("w1")), convey.ShouldBeNil)

		convey.Convey("When the latest version beats the baseline", func() {
			before, err := st.Rating(ctx, 1)
			convey.So(err, convey.ShouldBeNil)

			fresh, err := gen.Process(ctx, model.MatchSubmission{
				WorkerID: "w", WorkerName: "bench-1",
				Result: 1,
				Records: []model.RolloutRecord{
					{Trajectory: model.Trajectory("blue-traj"), Version: 1},
					{Trajectory: model.Trajectory("orange-traj"), Version: 0},
				},
			})

			convey.Convey("Then the winner's rating improves", func() {
				convey.So(err, convey.ShouldBeNil)
				after, err := st.Rating(ctx, 1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(after.Mu, convey.ShouldBeGreaterThan, before.Mu)
				convey.So(after.Sigma, convey.ShouldBeLessThan, before.Sigma)
			})

			convey.Convey("Then the baseline anchor is untouched", func() {
				convey.So(err, convey.ShouldBeNil)
				baseline, err := st.Rating(ctx, 0)
				convey.So(err, convey.ShouldBeNil)
				convey.So(baseline.Mu, convey.ShouldEqual, 0)
				convey.So(baseline.Sigma, convey.ShouldAlmostEqual, 25.0/3.0)
			})

			convey.Convey("Then only the latest-version trajectory is yielded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(fresh, convey.ShouldHaveLength, 1)
				convey.So(string(fresh[0]), convey.ShouldEqual, "blue-traj")
			})
		})

		convey.Convey("When all seats ran a stale version", func() {
			convey.So(gen.UpdateParameters(ctx, []byte("w2")), convey.ShouldBeNil)

			fresh, err := gen.Process(ctx, model.MatchSubmission{
				WorkerID: "w",
				Result:   -1,
				Records: []model.RolloutRecord{
					{Trajectory: model.Trajectory("a"), Version: 1},
					{Trajectory: model.Trajectory("b"), Version: 1},
				},
			})

			convey.Convey("Then ratings still update but nothing is yielded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(fresh, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When a seat names a version that was never published", func() {
			_, err := gen.Process(ctx, model.MatchSubmission{
				WorkerID: "w",
				Result:   1,
				Records: []model.RolloutRecord{
					{Trajectory: model.Trajectory("a"), Version: 1},
					{Trajectory: model.Trajectory("b"), Version: 99},
				},
			})

			convey.Convey("Then the submission is rejected as unknown", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err, convey.ShouldWrap, learner.ErrUnknownVersion)
			})
		})

		convey.Convey("When a submission has no seats", func() {
			_, err := gen.Process(ctx, model.MatchSubmission{WorkerID: "w"})

			convey.Convey("Then it is rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestGenerator_Rollouts(t *testing.T) {
	convey.Convey("Given a generator consuming a shared queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		st := store.NewMemory()
		defer func() { _ = st.Close() }()

		gen, err := learner.New(ctx, st)
		convey.So(err, convey.ShouldBeNil)
		convey.So(gen.UpdateParameters(ctx, []byte("w1")), convey.ShouldBeNil)

		convey.Convey("When a bad submission precedes a good one", func() {
			bad := model.MatchSubmission{
				WorkerID: "w",
				Result:   1,
				Records:  []model.RolloutRecord{{Trajectory: model.Trajectory("x"), Version: 99}},
			}
			good := model.MatchSubmission{
				WorkerID: "w",
				Result:   1,
				Records: []model.RolloutRecord{
					{Trajectory: model.Trajectory("keep"), Version: 1},
					{Trajectory: model.Trajectory("drop"), Version: 0},
				},
			}
			convey.So(st.PushSubmission(ctx, bad), convey.ShouldBeNil)
			convey.So(st.PushSubmission(ctx, good), convey.ShouldBeNil)

			out := gen.Rollouts(ctx)

			convey.Convey("Then the bad one is dropped and the stream continues", func() {
				select {
				case tr := <-out:
					convey.So(string(tr), convey.ShouldEqual, "keep")
				case <-time.After(2 * time.Second):
					convey.So("timed out waiting for trajectory", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When the store fails a dequeue transiently", func() {
			flaky := &flakyStore{Store: st, failures: 2}
			fgen, err := learner.New(ctx, flaky, learner.WithRetryDelay(time.Millisecond))
			convey.So(err, convey.ShouldBeNil)
			convey.So(fgen.UpdateParameters(ctx, []byte("fw")), convey.ShouldBeNil)

			sub := model.MatchSubmission{
				WorkerID: "w",
				Result:   1,
				Records: []model.RolloutRecord{
					{Trajectory: model.Trajectory("survives"), Version: 2},
					{Trajectory: model.Trajectory("stale"), Version: 0},
				},
			}
			convey.So(st.PushSubmission(ctx, sub), convey.ShouldBeNil)

			out := fgen.Rollouts(ctx)

			convey.Convey("Then the stream retries and still delivers", func() {
				select {
				case tr := <-out:
					convey.So(string(tr), convey.ShouldEqual, "survives")
				case <-time.After(2 * time.Second):
					convey.So("timed out waiting for trajectory", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When the context is cancelled", func() {
			out := gen.Rollouts(ctx)
			cancel()

			convey.Convey("Then the stream closes", func() {
				select {
				case _, ok := <-out:
					convey.So(ok, convey.ShouldBeFalse)
				case <-time.After(2 * time.Second):
					convey.So("timed out waiting for close", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

// flakyStore fails the first few dequeues before delegating.
type flakyStore struct {
	store.Store
	failures int
}

func (f *flakyStore) PopSubmission(ctx context.Context) (model.MatchSubmission, error) {
	if f.failures > 0 {
		f.failures--
		return model.MatchSubmission{}, errors.New("store unavailable")
	}
	return f.Store.PopSubmission(ctx)
}
