// Package metrics provides Prometheus metrics for the scrim training loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the scrim processes.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Learner-side metrics
	submissionsProcessed prometheus.Counter
	submissionsDropped   prometheus.Counter
	trajectoriesYielded  prometheus.Counter
	trajectoriesStale    prometheus.Counter
	modelPublishes       prometheus.Counter
	snapshotsSaved       prometheus.Counter
	submissionLatency    prometheus.Histogram

	// Worker-side metrics
	matchesPlayed    prometheus.Counter
	matchErrors      prometheus.Counter
	modelWaitRetries prometheus.Counter
	matchDuration    prometheus.Histogram

	// Shared state gauges
	modelVersion      prometheus.Gauge
	opponentPoolSize  prometheus.Gauge
	rolloutQueueDepth prometheus.Gauge
	registeredWorkers prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "scrim",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	if !m.enabled {
		return m
	}

	factory := promauto.With(m.registry)

	m.submissionsProcessed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "submissions_processed_total",
		Help: "Match submissions dequeued and aggregated into ratings.",
	})
	m.submissionsDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "submissions_dropped_total",
		Help: "Match submissions dropped due to unresolvable versions.",
	})
	m.trajectoriesYielded = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "trajectories_yielded_total",
		Help: "Trajectories passed to the training stream.",
	})
	m.trajectoriesStale = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "trajectories_stale_total",
		Help: "Trajectories discarded by the staleness filter.",
	})
	m.modelPublishes = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "model_publishes_total",
		Help: "Model parameter publications.",
	})
	m.snapshotsSaved = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "snapshots_saved_total",
		Help: "Snapshots appended to the opponent pool.",
	})
	m.submissionLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "submission_processing_seconds",
		Help:    "Time spent aggregating one match submission.",
		Buckets: m.histogramBuckets,
	})

	m.matchesPlayed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "matches_played_total",
		Help: "Completed episodes on this worker.",
	})
	m.matchErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "match_errors_total",
		Help: "Episodes that failed before publishing.",
	})
	m.modelWaitRetries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "model_wait_retries_total",
		Help: "Polls that found no published model.",
	})
	m.matchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "match_duration_seconds",
		Help:    "Wall time of one episode.",
		Buckets: m.histogramBuckets,
	})

	m.modelVersion = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "model_version",
		Help: "Latest published model version.",
	})
	m.opponentPoolSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "opponent_pool_size",
		Help: "Snapshots available in the opponent pool.",
	})
	m.rolloutQueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "rollout_queue_depth",
		Help: "Pending match submissions in the rollout queue.",
	})
	m.registeredWorkers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "registered_workers",
		Help: "Worker identities registered in the store.",
	})

	return m
}

// Registry returns the registry backing the global manager, for serving.
func Registry() *prometheus.Registry {
	return customRegistry
}

// Package-level record helpers operating on the global manager.

func RecordSubmissionProcessed() { record(globalManager.submissionsProcessed) }
func RecordSubmissionDropped()   { record(globalManager.submissionsDropped) }
func RecordTrajectoryYielded()   { record(globalManager.trajectoriesYielded) }
func RecordTrajectoryStale()     { record(globalManager.trajectoriesStale) }
func RecordModelPublish()        { record(globalManager.modelPublishes) }
func RecordSnapshotSaved()       { record(globalManager.snapshotsSaved) }
func RecordMatchPlayed()         { record(globalManager.matchesPlayed) }
func RecordMatchError()          { record(globalManager.matchErrors) }
func RecordModelWaitRetry()      { record(globalManager.modelWaitRetries) }

func RecordSubmissionLatency(seconds float64) { observe(globalManager.submissionLatency, seconds) }
func RecordMatchDuration(seconds float64)     { observe(globalManager.matchDuration, seconds) }

func UpdateModelVersion(v int)       { gauge(globalManager.modelVersion, float64(v)) }
func UpdateOpponentPoolSize(n int)   { gauge(globalManager.opponentPoolSize, float64(n)) }
func UpdateRolloutQueueDepth(n int)  { gauge(globalManager.rolloutQueueDepth, float64(n)) }
func UpdateRegisteredWorkers(n int)  { gauge(globalManager.registeredWorkers, float64(n)) }

func record(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func observe(h prometheus.Histogram, v float64) {
	if h != nil {
		h.Observe(v)
	}
}

func gauge(g prometheus.Gauge, v float64) {
	if g != nil {
		g.Set(v)
	}
}
