package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run kinds.
const (
	KindDiscovery  = "discovery"
	KindGeneration = "generation"
	KindSubmission = "submission"
)

// Run statuses.
const (
	StatusIdle      = "idle"
	StatusSearching = "searching"
	StatusScoring   = "scoring"
	StatusStoring   = "storing"
	StatusRunning   = "running"
	StatusComplete  = "complete"
	StatusFailed    = "failed"
)

// Record is a snapshot of one run's progress.
type Record struct {
	RunID      string         `json:"run_id"`
	Kind       string         `json:"kind"`
	ProjectID  int64          `json:"project_id"`
	Status     string         `json:"status"`
	Counters   map[string]int `json:"counters"`
	Errors     []string       `json:"errors,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// active reports whether the run is still in flight.
func (r *Record) active() bool {
	return r.Status != StatusComplete && r.Status != StatusFailed
}

// Tracker holds process-local, run-scoped progress records keyed by
// (kind, project). Runs are single-flight per key: a second start while one
// is active is rejected. All counter updates go through tracker methods, so
// snapshots stay consistent under concurrent polling.
type Tracker struct {
	mu   sync.Mutex
	runs map[string]*Record
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]*Record)}
}

func key(kind string, projectID int64) string {
	return fmt.Sprintf("%s:%d", kind, projectID)
}

// Start registers a new run. It fails if a run of the same kind is still
// active for the project.
func (t *Tracker) Start(kind string, projectID int64, initialStatus string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.runs[key(kind, projectID)]; ok && existing.active() {
		return "", fmt.Errorf("%s run already active for project %d", kind, projectID)
	}

	runID := uuid.NewString()
	t.runs[key(kind, projectID)] = &Record{
		RunID:     runID,
		Kind:      kind,
		ProjectID: projectID,
		Status:    initialStatus,
		Counters:  make(map[string]int),
		StartedAt: time.Now(),
	}
	return runID, nil
}

// SetStatus advances the run's state-machine stage.
func (t *Tracker) SetStatus(kind string, projectID int64, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.runs[key(kind, projectID)]; ok {
		r.Status = status
	}
}

// Add increments a named counter by delta.
func (t *Tracker) Add(kind string, projectID int64, counter string, delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.runs[key(kind, projectID)]; ok {
		r.Counters[counter] += delta
	}
}

// Set stores an absolute counter value.
func (t *Tracker) Set(kind string, projectID int64, counter string, value int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.runs[key(kind, projectID)]; ok {
		r.Counters[counter] = value
	}
}

// AddError appends a per-item error message to the run.
func (t *Tracker) AddError(kind string, projectID int64, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.runs[key(kind, projectID)]; ok {
		r.Errors = append(r.Errors, msg)
	}
}

// Complete marks the run complete.
func (t *Tracker) Complete(kind string, projectID int64) {
	t.finish(kind, projectID, StatusComplete, "")
}

// Fail marks the run failed with the captured error message.
func (t *Tracker) Fail(kind string, projectID int64, errMsg string) {
	t.finish(kind, projectID, StatusFailed, errMsg)
}

func (t *Tracker) finish(kind string, projectID int64, status, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.runs[key(kind, projectID)]; ok {
		r.Status = status
		r.Error = errMsg
		now := time.Now()
		r.FinishedAt = &now
	}
}

// Get returns a copy of the run record for polling, or nil if no run of that
// kind was ever started for the project.
func (t *Tracker) Get(kind string, projectID int64) *Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.runs[key(kind, projectID)]
	if !ok {
		return nil
	}
	snapshot := *r
	snapshot.Counters = make(map[string]int, len(r.Counters))
	for k, v := range r.Counters {
		snapshot.Counters[k] = v
	}
	snapshot.Errors = append([]string(nil), r.Errors...)
	return &snapshot
}
