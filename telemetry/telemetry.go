// Package telemetry carries per-tick state out of the control loop to
// passive display collaborators. Everything here is fire-and-forget from the
// loop's perspective: a publish never blocks the tick and no return value is
// consumed.
package telemetry

import (
	"sync"
	"time"

	"github.com/golang/geo/r3"
)

// Snapshot is the state published once per tick: the committed configuration
// and the accumulated end-effector path.
type Snapshot struct {
	Time          time.Time   `json:"time"`
	Configuration []float64   `json:"configuration"`
	EndEffector   r3.Vector   `json:"end_effector"`
	Path          []r3.Vector `json:"path"`
}

// Sink consumes snapshots. Implementations must not block the caller.
type Sink interface {
	Publish(Snapshot)
}

// Noop is a Sink that discards everything.
type Noop struct{}

// Publish discards the snapshot.
func (Noop) Publish(Snapshot) {}

// Recorder accumulates the end-effector path and retains the latest
// snapshot. It doubles as a Sink for tests and for in-memory display.
type Recorder struct {
	mu     sync.Mutex
	path   []r3.Vector
	latest Snapshot
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish appends the snapshot's end-effector position to the path.
func (r *Recorder) Publish(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = append(r.path, snap.EndEffector)
	r.latest = snap
}

// Record appends a bare end-effector position.
func (r *Recorder) Record(p r3.Vector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = append(r.path, p)
}

// Path returns a copy of the accumulated end-effector path.
func (r *Recorder) Path() []r3.Vector {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]r3.Vector, len(r.path))
	copy(out, r.path)
	return out
}

// Latest returns the most recently published snapshot.
func (r *Recorder) Latest() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}
