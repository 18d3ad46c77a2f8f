// Package model contains the protocol data types passed between layers.
package model

// BaselineVersion identifies the fixed baseline model. Its rating is an
// anchor that is never written back.
const BaselineVersion = 0

// Rating is a skill estimate for one model version.
type Rating struct {
	Mu    float64
	Sigma float64
}

// ModelSnapshot is an immutable published set of model parameters.
// Version numbers are dense: every published version has exactly one
// Rating, but only every save_every-th version joins the opponent pool.
type ModelSnapshot struct {
	Version int
	Blob    []byte
}

// Trajectory is the opaque per-seat experience produced by one episode.
// The protocol never inspects it.
type Trajectory []byte

// RolloutRecord pairs one seat's trajectory with the version of the
// model that produced it.
type RolloutRecord struct {
	Trajectory Trajectory
	Version    int
}

// MatchSubmission bundles everything a worker publishes after one match:
// one record per seat in seat order, the worker's identity, and the
// signed result (positive means blue advantage, negative orange).
type MatchSubmission struct {
	Records    []RolloutRecord
	WorkerID   string
	WorkerName string
	Result     float64
}

// Seats returns the number of seats in the submission.
func (s MatchSubmission) Seats() int {
	return len(s.Records)
}
