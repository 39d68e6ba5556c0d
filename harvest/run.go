package harvest

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/resulthound/resulthound/models"
)

// Run statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// Run is one roster's worth of work: the growing ResultTable, the skipped
// students, and progress counters. All mutation happens through methods so
// the status endpoint can read while the loop writes.
type Run struct {
	ID        string
	Total     int
	CreatedAt int64

	// Table grows monotonically during the loop and is read-only after
	// the run reaches a terminal status.
	Table *models.ResultTable

	mu        sync.Mutex
	status    string
	completed int
	succeeded int
	failures  []models.FetchFailure
}

// NewRun creates a processing Run for a roster of the given size.
func NewRun(total int) *Run {
	return &Run{
		ID:        "run-" + randomID(),
		Total:     total,
		CreatedAt: time.Now().Unix(),
		Table:     &models.ResultTable{},
		status:    StatusProcessing,
	}
}

func (r *Run) appendRows(rows []models.ResultRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Table.Append(rows...)
	r.completed++
	r.succeeded++
}

func (r *Run) recordFailure(failure models.FetchFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failure)
	r.completed++
}

// finish moves the run to its terminal status and returns it.
func (r *Run) finish() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.succeeded == 0:
		r.status = StatusFailed
	case len(r.failures) > 0:
		r.status = StatusPartial
	default:
		r.status = StatusCompleted
	}
	return r.status
}

// Status returns the run's current status.
func (r *Run) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Done reports whether the run has reached a terminal status.
func (r *Run) Done() bool {
	return r.Status() != StatusProcessing
}

// progress returns the counters used by the status endpoint and webhooks.
func (r *Run) progress() (completed, total, rows, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed, r.Total, r.Table.Len(), len(r.failures)
}

// StatusResponse assembles the API view of the run. Page snapshots are
// withheld; they are diagnostic payloads, not API material.
func (r *Run) StatusResponse() models.RunStatusResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	failures := make([]models.FetchFailure, len(r.failures))
	for i, f := range r.failures {
		f.Snapshot = ""
		failures[i] = f
	}

	return models.RunStatusResponse{
		ID:        r.ID,
		Status:    r.status,
		Completed: r.completed,
		Total:     r.Total,
		Rows:      r.Table.Len(),
		Failures:  failures,
	}
}

// Failures returns a copy of the failure records, snapshots included.
func (r *Run) Failures() []models.FetchFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.FetchFailure, len(r.failures))
	copy(out, r.failures)
	return out
}

// Registry holds all in-flight and finished runs, evicting runs older than
// the TTL so an unattended service does not accumulate tables forever.
type Registry struct {
	runs sync.Map
	ttl  time.Duration
}

// NewRegistry creates a Registry and starts its eviction loop.
func NewRegistry(ttl time.Duration) *Registry {
	r := &Registry{ttl: ttl}
	go r.evictLoop()
	return r
}

// Add stores a run under its ID.
func (reg *Registry) Add(run *Run) {
	reg.runs.Store(run.ID, run)
}

// Get looks up a run by ID.
func (reg *Registry) Get(id string) (*Run, bool) {
	val, ok := reg.runs.Load(id)
	if !ok {
		return nil, false
	}
	return val.(*Run), true
}

// evictLoop drops expired runs every 5 minutes.
func (reg *Registry) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-reg.ttl).Unix()
		reg.runs.Range(func(key, value any) bool {
			if value.(*Run).CreatedAt < cutoff {
				reg.runs.Delete(key)
			}
			return true
		})
	}
}

// randomID generates a short random hex string for run IDs.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
