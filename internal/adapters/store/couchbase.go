package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/pkg/errors"

	"github.com/okian/scrim/internal/adapters/codec"
	"github.com/okian/scrim/internal/domain/model"
)

// Couchbase store defaults.
const (
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxRetries   = 20
	retryDelay          = 100 * time.Millisecond
	bucketReadyTimeout  = 5 * time.Second
)

// opponentKey formats the per-snapshot document key.
func opponentKey(version int) string {
	return fmt.Sprintf("%s-%d", KeyOpponentModels, version)
}

// CouchbaseConfig holds connection settings for the shared cluster.
type CouchbaseConfig struct {
	ConnStr  string
	Username string
	Password string
	Bucket   string
}

// Couchbase implements Store against a shared Couchbase cluster.
//
// Lists live in single documents mutated through CAS retry loops; the
// rollout queue is a document popped from the head under CAS, polled at
// a fixed interval when empty. Individual document mutations are
// atomic; cross-document sequences are not.
type Couchbase struct {
	cluster    *gocb.Cluster
	collection *gocb.Collection

	codec        codec.Codec
	pollInterval time.Duration
	maxRetries   int

	closed    chan struct{}
	closeOnce sync.Once
}

// Document shapes. Everything protocol-typed crosses the codec first so
// the JSON layer never constrains the wire format.

type blobDoc struct {
	Data []byte `json:"data"`
}

type versionDoc struct {
	Version int `json:"version"`
}

type ratingsDoc struct {
	Ratings []model.Rating `json:"ratings"`
}

type poolDoc struct {
	Versions []int `json:"versions"`
}

type queueDoc struct {
	Items [][]byte `json:"items"`
}

type workersDoc struct {
	IDs []string `json:"ids"`
}

// NewCouchbase connects to the cluster and returns a ready store.
func NewCouchbase(cfg CouchbaseConfig, opts ...CouchbaseOption) (*Couchbase, error) {
	cluster, err := gocb.Connect(cfg.ConnStr, gocb.ClusterOptions{
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect cluster")
	}

	bucket := cluster.Bucket(cfg.Bucket)
	if err := bucket.WaitUntilReady(bucketReadyTimeout, nil); err != nil {
		return nil, errors.Wrapf(err, "bucket %q not ready", cfg.Bucket)
	}

	s := &Couchbase{
		cluster:      cluster,
		collection:   bucket.DefaultCollection(),
		codec:        codec.NewGob(),
		pollInterval: defaultPollInterval,
		maxRetries:   defaultMaxRetries,
		closed:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Couchbase) SetModel(_ context.Context, blob []byte) error {
	_, err := s.collection.Upsert(KeyModelLatest, blobDoc{Data: blob}, nil)
	return errors.Wrap(err, "set model")
}

func (s *Couchbase) Model(_ context.Context) ([]byte, error) {
	var doc blobDoc
	if err := s.get(KeyModelLatest, &doc); err != nil {
		return nil, err
	}
	return doc.Data, nil
}

func (s *Couchbase) SetVersion(_ context.Context, version int) error {
	_, err := s.collection.Upsert(KeyModelVersion, versionDoc{Version: version}, nil)
	return errors.Wrap(err, "set version")
}

func (s *Couchbase) Version(_ context.Context) (int, error) {
	var doc versionDoc
	if err := s.get(KeyModelVersion, &doc); err != nil {
		return 0, err
	}
	return doc.Version, nil
}

func (s *Couchbase) AppendRating(_ context.Context, r model.Rating) error {
	return s.mutateRatings(func(doc *ratingsDoc) error {
		doc.Ratings = append(doc.Ratings, r)
		return nil
	})
}

func (s *Couchbase) SetRating(_ context.Context, version int, r model.Rating) error {
	return s.mutateRatings(func(doc *ratingsDoc) error {
		if version < 0 || version >= len(doc.Ratings) {
			return ErrNotFound
		}
		doc.Ratings[version] = r
		return nil
	})
}

func (s *Couchbase) Rating(ctx context.Context, version int) (model.Rating, error) {
	ratings, err := s.Ratings(ctx)
	if err != nil {
		return model.Rating{}, err
	}
	if version < 0 || version >= len(ratings) {
		return model.Rating{}, ErrNotFound
	}
	return ratings[version], nil
}

func (s *Couchbase) Ratings(_ context.Context) ([]model.Rating, error) {
	var doc ratingsDoc
	if err := s.get(KeyQualities, &doc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Ratings, nil
}

func (s *Couchbase) AppendOpponent(_ context.Context, snap model.ModelSnapshot) error {
	data, err := s.codec.Encode(snap)
	if err != nil {
		return err
	}
	if _, err := s.collection.Upsert(opponentKey(snap.Version), blobDoc{Data: data}, nil); err != nil {
		return errors.Wrapf(err, "store snapshot v%d", snap.Version)
	}

	return s.mutatePool(func(doc *poolDoc) error {
		doc.Versions = append(doc.Versions, snap.Version)
		return nil
	})
}

func (s *Couchbase) Opponent(ctx context.Context, index int) (model.ModelSnapshot, error) {
	versions, err := s.OpponentVersions(ctx)
	if err != nil {
		return model.ModelSnapshot{}, err
	}
	if index < 0 || index >= len(versions) {
		return model.ModelSnapshot{}, ErrNotFound
	}

	var doc blobDoc
	if err := s.get(opponentKey(versions[index]), &doc); err != nil {
		return model.ModelSnapshot{}, err
	}

	var snap model.ModelSnapshot
	if err := s.codec.Decode(doc.Data, &snap); err != nil {
		return model.ModelSnapshot{}, err
	}
	return snap, nil
}

func (s *Couchbase) OpponentVersions(_ context.Context) ([]int, error) {
	var doc poolDoc
	if err := s.get(KeyOpponentModels, &doc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Versions, nil
}

func (s *Couchbase) PushSubmission(_ context.Context, sub model.MatchSubmission) error {
	data, err := s.codec.Encode(sub)
	if err != nil {
		return err
	}
	return s.mutateQueue(func(doc *queueDoc) error {
		doc.Items = append(doc.Items, data)
		return nil
	})
}

func (s *Couchbase) PopSubmission(ctx context.Context) (model.MatchSubmission, error) {
	for {
		data, ok, err := s.tryPop()
		if err != nil {
			return model.MatchSubmission{}, err
		}
		if ok {
			var sub model.MatchSubmission
			if err := s.codec.Decode(data, &sub); err != nil {
				return model.MatchSubmission{}, err
			}
			return sub, nil
		}

		select {
		case <-ctx.Done():
			return model.MatchSubmission{}, ctx.Err()
		case <-s.closed:
			return model.MatchSubmission{}, ErrClosed
		case <-time.After(s.pollInterval):
		}
	}
}

// tryPop removes and returns the queue head, reporting ok=false when
// the queue is empty.
func (s *Couchbase) tryPop() (data []byte, ok bool, err error) {
	err = s.withRetry(func() error {
		res, gerr := s.collection.Get(KeyRollouts, nil)
		if gerr != nil {
			if errors.Is(gerr, gocb.ErrDocumentNotFound) {
				return nil
			}
			return gerr
		}

		var doc queueDoc
		if cerr := res.Content(&doc); cerr != nil {
			return errors.Wrap(cerr, "parse queue")
		}
		if len(doc.Items) == 0 {
			return nil
		}

		head := doc.Items[0]
		doc.Items = doc.Items[1:]
		if _, rerr := s.collection.Replace(KeyRollouts, doc, &gocb.ReplaceOptions{Cas: res.Cas()}); rerr != nil {
			return rerr
		}

		data = head
		ok = true
		return nil
	})
	return data, ok, err
}

func (s *Couchbase) QueueLen(_ context.Context) (int, error) {
	var doc queueDoc
	if err := s.get(KeyRollouts, &doc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return len(doc.Items), nil
}

func (s *Couchbase) RegisterWorker(_ context.Context, id string) error {
	return s.mutateWorkers(func(doc *workersDoc) error {
		doc.IDs = append(doc.IDs, id)
		return nil
	})
}

func (s *Couchbase) Workers(_ context.Context) ([]string, error) {
	var doc workersDoc
	if err := s.get(KeyWorkerIDs, &doc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return doc.IDs, nil
}

func (s *Couchbase) Clear(ctx context.Context) error {
	versions, err := s.OpponentVersions(ctx)
	if err != nil {
		return err
	}
	keys := []string{KeyModelLatest, KeyModelVersion, KeyQualities, KeyOpponentModels, KeyRollouts, KeyWorkerIDs}
	for _, v := range versions {
		keys = append(keys, opponentKey(v))
	}

	for _, key := range keys {
		if _, err := s.collection.Remove(key, nil); err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
			return errors.Wrapf(err, "remove %q", key)
		}
	}
	return nil
}

func (s *Couchbase) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return s.cluster.Close(nil)
}

// get reads one document, mapping a missing document to ErrNotFound.
func (s *Couchbase) get(key string, out interface{}) error {
	res, err := s.collection.Get(key, nil)
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return ErrNotFound
		}
		return errors.Wrapf(err, "get %q", key)
	}
	if err := res.Content(out); err != nil {
		return errors.Wrapf(err, "parse %q", key)
	}
	return nil
}

// Per-document mutate helpers. Each reads the document (creating it on
// first touch), applies fn, and writes back under CAS, retrying on
// contention.

func (s *Couchbase) mutateRatings(fn func(*ratingsDoc) error) error {
	return s.mutate(KeyQualities, func(raw *gocb.GetResult) (interface{}, error) {
		var doc ratingsDoc
		if raw != nil {
			if err := raw.Content(&doc); err != nil {
				return nil, err
			}
		}
		if err := fn(&doc); err != nil {
			return nil, err
		}
		return doc, nil
	})
}

func (s *Couchbase) mutatePool(fn func(*poolDoc) error) error {
	return s.mutate(KeyOpponentModels, func(raw *gocb.GetResult) (interface{}, error) {
		var doc poolDoc
		if raw != nil {
			if err := raw.Content(&doc); err != nil {
				return nil, err
			}
		}
		if err := fn(&doc); err != nil {
			return nil, err
		}
		return doc, nil
	})
}

func (s *Couchbase) mutateQueue(fn func(*queueDoc) error) error {
	return s.mutate(KeyRollouts, func(raw *gocb.GetResult) (interface{}, error) {
		var doc queueDoc
		if raw != nil {
			if err := raw.Content(&doc); err != nil {
				return nil, err
			}
		}
		if err := fn(&doc); err != nil {
			return nil, err
		}
		return doc, nil
	})
}

func (s *Couchbase) mutateWorkers(fn func(*workersDoc) error) error {
	return s.mutate(KeyWorkerIDs, func(raw *gocb.GetResult) (interface{}, error) {
		var doc workersDoc
		if raw != nil {
			if err := raw.Content(&doc); err != nil {
				return nil, err
			}
		}
		if err := fn(&doc); err != nil {
			return nil, err
		}
		return doc, nil
	})
}

// mutate implements the CAS read-modify-write loop shared by the list
// documents.
func (s *Couchbase) mutate(key string, apply func(*gocb.GetResult) (interface{}, error)) error {
	return s.withRetry(func() error {
		res, err := s.collection.Get(key, nil)
		switch {
		case err == nil:
			doc, aerr := apply(res)
			if aerr != nil {
				return aerr
			}
			_, rerr := s.collection.Replace(key, doc, &gocb.ReplaceOptions{Cas: res.Cas()})
			return rerr
		case errors.Is(err, gocb.ErrDocumentNotFound):
			doc, aerr := apply(nil)
			if aerr != nil {
				return aerr
			}
			_, ierr := s.collection.Insert(key, doc, nil)
			return ierr
		default:
			return err
		}
	})
}

// withRetry runs fn, retrying contended or transient failures with a
// linearly growing delay.
func (s *Couchbase) withRetry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		time.Sleep(retryDelay * time.Duration(attempt))
	}
	return errors.Wrap(err, "retries exhausted")
}

func retryable(err error) bool {
	return errors.Is(err, gocb.ErrCasMismatch) ||
		errors.Is(err, gocb.ErrDocumentExists) ||
		errors.Is(err, gocb.ErrDocumentLocked) ||
		errors.Is(err, gocb.ErrTemporaryFailure) ||
		errors.Is(err, gocb.ErrTimeout)
}
