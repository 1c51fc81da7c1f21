package photomatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned for an unknown solve job id.
var ErrJobNotFound = errors.New("solve job not found")

// JobStatus is the lifecycle state of a solve job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// SolveJob is a snapshot of one background solve.
type SolveJob struct {
	ID       string       `json:"id"`
	SceneID  int          `json:"sceneId"`
	PhotoID  int          `json:"photoId"`
	Status   JobStatus    `json:"status"`
	Result   *SolveResult `json:"result,omitempty"`
	Error    string       `json:"error,omitempty"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished,omitzero"`
}

type jobEntry struct {
	job    SolveJob
	cancel context.CancelFunc
	done   chan struct{}
}

// SolveFunc runs one solve for a tracked job.
type SolveFunc func(ctx context.Context) (SolveResult, error)

// SolveTracker runs solves in the background and keeps their outcome for
// the HTTP endpoints.
type SolveTracker struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
	max  int
}

// NewSolveTracker keeps at most maxJobs finished jobs; 0 means 100.
func NewSolveTracker(maxJobs int) *SolveTracker {
	if maxJobs <= 0 {
		maxJobs = 100
	}
	return &SolveTracker{jobs: make(map[string]*jobEntry), max: maxJobs}
}

// Start runs fn in a new goroutine and returns the job id. The job context
// derives from ctx and is cancelled by Cancel.
func (t *SolveTracker) Start(ctx context.Context, sceneID, photoID int, fn SolveFunc) string {
	jobCtx, cancel := context.WithCancel(ctx)
	e := &jobEntry{
		job: SolveJob{
			ID:      uuid.NewString(),
			SceneID: sceneID,
			PhotoID: photoID,
			Status:  JobPending,
			Started: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	t.mu.Lock()
	t.prune()
	t.jobs[e.job.ID] = e
	t.mu.Unlock()

	go t.run(jobCtx, e, fn)
	return e.job.ID
}

func (t *SolveTracker) run(ctx context.Context, e *jobEntry, fn SolveFunc) {
	defer close(e.done)
	defer e.cancel()

	t.mu.Lock()
	if e.job.Status == JobPending {
		e.job.Status = JobRunning
	}
	t.mu.Unlock()

	res, err := fn(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	e.job.Finished = time.Now()
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		e.job.Status = JobCancelled
		e.job.Error = err.Error()
	case err != nil:
		e.job.Status = JobFailed
		e.job.Error = err.Error()
		log.Printf("Solve job %s failed: %v", e.job.ID, err)
	default:
		e.job.Status = JobDone
		e.job.Result = &res
	}
}

// prune drops the oldest finished jobs beyond the limit. mu must be held.
func (t *SolveTracker) prune() {
	if len(t.jobs) < t.max {
		return
	}
	var finished []*jobEntry
	for _, e := range t.jobs {
		if !e.job.Finished.IsZero() {
			finished = append(finished, e)
		}
	}
	slices.SortFunc(finished, func(a, b *jobEntry) int {
		return a.job.Finished.Compare(b.job.Finished)
	})
	for _, e := range finished {
		if len(t.jobs) < t.max {
			return
		}
		delete(t.jobs, e.job.ID)
	}
}

// Get returns a snapshot of a job.
func (t *SolveTracker) Get(id string) (SolveJob, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.jobs[id]
	if !ok {
		return SolveJob{}, fmt.Errorf("%s: %w", id, ErrJobNotFound)
	}
	return e.job, nil
}

// Cancel asks a running job to stop. Finished jobs are left as they are.
func (t *SolveTracker) Cancel(id string) error {
	t.mu.RLock()
	e, ok := t.jobs[id]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrJobNotFound)
	}
	e.cancel()
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (t *SolveTracker) Wait(ctx context.Context, id string) (SolveJob, error) {
	t.mu.RLock()
	e, ok := t.jobs[id]
	t.mu.RUnlock()
	if !ok {
		return SolveJob{}, fmt.Errorf("%s: %w", id, ErrJobNotFound)
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return SolveJob{}, ctx.Err()
	}
	return t.Get(id)
}

// List returns every tracked job, newest first.
func (t *SolveTracker) List() []SolveJob {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SolveJob, 0, len(t.jobs))
	for _, e := range t.jobs {
		out = append(out, e.job)
	}
	slices.SortFunc(out, func(a, b SolveJob) int {
		return b.Started.Compare(a.Started)
	})
	return out
}
