package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// JobState is a background job's lifecycle phase.
type JobState string

const (
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Job is an observable snapshot of one background operation.
type Job struct {
	ID         string
	Kind       string
	State      JobState
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// jobRegistry runs operations in the background and keeps their
// terminal state for later JobStatus lookups.
type jobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*Job
	seq  atomic.Int64
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[string]*Job)}
}

// Start launches fn detached from the caller's context: an async job
// outlives the request that triggered it.
func (r *jobRegistry) Start(kind string, fn func(ctx context.Context) error) string {
	id := fmt.Sprintf("%s-%d", kind, r.seq.Add(1))
	job := &Job{ID: id, Kind: kind, State: JobRunning, StartedAt: time.Now()}

	r.mu.Lock()
	r.jobs[id] = job
	r.mu.Unlock()

	go func() {
		err := fn(context.Background())
		r.mu.Lock()
		defer r.mu.Unlock()
		job.FinishedAt = time.Now()
		if err != nil {
			job.State = JobFailed
			job.Error = err.Error()
		} else {
			job.State = JobDone
		}
	}()
	return id
}

// Status returns a copy of the job, or false for an unknown ID.
func (r *jobRegistry) Status(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}
