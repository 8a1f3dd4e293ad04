// Package jobs tracks asynchronous archive ingestion.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"productimages/internal/ingest"
)

var ErrNotFound = errors.New("job not found")

type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateDone     State = "done"
	StateFailed   State = "failed"
	StateCanceled State = "canceled"
)

type Job struct {
	ID        string          `json:"id"`
	State     State           `json:"state"`
	FileName  string          `json:"fileName"`
	Processed int             `json:"processed"`
	Total     int             `json:"total"`
	Summary   *ingest.Summary `json:"summary,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Tracker is an in-process registry of jobs. Jobs are visible only to the
// process that created them.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*Job), now: time.Now}
}

func (t *Tracker) Create(fileName string) Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now().UTC()
	j := &Job{ID: uuid.NewString(), State: StateQueued, FileName: fileName, CreatedAt: now, UpdatedAt: now}
	t.jobs[j.ID] = j
	return *j
}

func (t *Tracker) Get(id string) (Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *j, nil
}

func (t *Tracker) Start(id string) {
	t.set(id, func(j *Job) { j.State = StateRunning })
}

// Progress records processed/total. processed never moves backwards.
func (t *Tracker) Progress(id string, processed, total int) {
	t.set(id, func(j *Job) {
		if processed > j.Processed {
			j.Processed = processed
		}
		j.Total = total
	})
}

// Finish stores the outcome. A canceled context marks the job canceled
// rather than failed; the partial summary is kept either way.
func (t *Tracker) Finish(id string, sum ingest.Summary, err error) {
	t.set(id, func(j *Job) {
		j.Summary = &sum
		switch {
		case err == nil:
			j.State = StateDone
		case errors.Is(err, context.Canceled) || sum.Canceled:
			j.State = StateCanceled
			j.Error = err.Error()
		default:
			j.State = StateFailed
			j.Error = err.Error()
		}
	})
}

func (t *Tracker) set(id string, fn func(j *Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return
	}
	fn(j)
	j.UpdatedAt = t.now().UTC()
}
