// Package config defines process configuration structures and loading hooks.
//
// Conventions:
// - Provide New() defaults and Load(ctx) layering file and env on top.
// - External errors must be wrapped via this package's error helpers.
package config

import "context"

// Config contains process configuration for both roles. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// MetricsAddr configures the Prometheus listen address, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`

	// StoreBackend selects the coordination store: memory or couchbase.
	StoreBackend string `koanf:"store_backend"`

	// Couchbase connection settings, used when store_backend=couchbase.
	CouchbaseConnStr  string `koanf:"couchbase_connstr"`
	CouchbaseUser     string `koanf:"couchbase_user"`
	CouchbasePassword string `koanf:"couchbase_password"`
	CouchbaseBucket   string `koanf:"couchbase_bucket"`

	// QueueCapacity bounds the in-memory rollout queue.
	QueueCapacity int `koanf:"queue_capacity"`

	// Codec selects the store serialization codec: gob or zstd
	// (gob compressed with zstd).
	Codec string `koanf:"codec"`

	// Seats sets the number of agent seats per match.
	Seats int `koanf:"seats"`

	// CurrentProb is the target fraction of seats playing the latest model.
	CurrentProb float64 `koanf:"current_prob"`

	// PollDelayMS is the worker's fixed wait between model polls.
	PollDelayMS int `koanf:"poll_delay_ms"`

	// WorkerName labels this worker in submissions and logs.
	WorkerName string `koanf:"worker_name"`

	// SaveEvery is the snapshot cadence: every n-th version joins the
	// opponent pool.
	SaveEvery int `koanf:"save_every"`

	// SeedPolicy decides new-version rating seeds: latest or anchor.
	SeedPolicy string `koanf:"seed_policy"`
}

// New creates a Config with defaults. Context is accepted first to
// satisfy the project-wide convention; it is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		MetricsAddr:       ":9090",
		StoreBackend:      "memory",
		CouchbaseConnStr:  "couchbase://localhost",
		CouchbaseUser:     "scrim",
		CouchbasePassword: "",
		CouchbaseBucket:   "scrim",
		QueueCapacity:     100_000,
		Codec:             "zstd",
		Seats:             2,
		CurrentProb:       0.9,
		PollDelayMS:       1000,
		WorkerName:        "worker",
		SaveEvery:         10,
		SeedPolicy:        "latest",
	}
}
