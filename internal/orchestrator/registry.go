package orchestrator

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gooeystudio/api/internal/model"
)

var (
	// ErrJobNotFound is returned for lookups and mutations of unknown job ids.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when an upsert would move a job
	// backwards through the state machine. The job is left unchanged.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Listener receives a snapshot of a job after every accepted registry change.
// Listeners run synchronously in registration order on the upsert path and
// with the registry lock held, so transition order and notification order
// match exactly; they must not block or call back into the Registry. Anything
// slow belongs behind a channel (see history.Writer).
type Listener func(job model.Job)

// Registry is the single source of truth for all jobs known to the process.
// It is lost on restart; only completed jobs survive via the history store.
type Registry struct {
	mu        sync.Mutex
	jobs      map[string]*model.Job
	listeners []Listener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*model.Job),
	}
}

// Upsert inserts a new job or merges an update into the existing one. Merge
// semantics: non-zero fields of in overwrite; progress only moves forward; a
// status change is validated against the state machine and an illegal one is
// rejected with ErrInvalidTransition, leaving the job untouched. Artifacts
// are only ever applied to a complete job.
//
// The returned snapshot reflects the job after the merge.
func (r *Registry) Upsert(in model.Job) (model.Job, error) {
	if in.ID == "" {
		return model.Job{}, fmt.Errorf("job id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.jobs[in.ID]
	if !ok {
		job := in.Clone()
		if job.Status == "" {
			job.Status = model.StatusSubmitted
		}
		if job.CreatedAt.IsZero() {
			job.CreatedAt = time.Now()
		}
		if job.Status != model.StatusComplete {
			job.Artifacts = nil
		}
		if job.Status.Terminal() && job.CompletedAt == nil {
			now := time.Now()
			job.CompletedAt = &now
		}
		job.Progress = clampProgress(job.Progress)
		if job.Status == model.StatusComplete {
			job.Progress = 100
		}
		r.jobs[job.ID] = &job
		snapshot := job.Clone()
		r.notify(snapshot)
		return snapshot, nil
	}

	if in.Status != "" && in.Status != cur.Status {
		if !cur.Status.CanTransition(in.Status) {
			log.Printf("[Registry] rejected transition %s → %s for job %s", cur.Status, in.Status, in.ID)
			return cur.Clone(), ErrInvalidTransition
		}
		cur.Status = in.Status
		if cur.Status.Terminal() {
			now := time.Now()
			cur.CompletedAt = &now
		}
		if cur.Status == model.StatusComplete {
			cur.Progress = 100
		}
	}

	if p := clampProgress(in.Progress); p > cur.Progress && !cur.Status.Terminal() {
		cur.Progress = p
	}
	if in.StatusMessage != "" {
		cur.StatusMessage = in.StatusMessage
	}
	if len(in.Payload) > 0 && cur.Payload == nil {
		cur.Payload = in.Clone().Payload
	}
	if len(in.Artifacts) > 0 && cur.Status == model.StatusComplete {
		if cur.Artifacts == nil {
			cur.Artifacts = make(model.Artifacts, len(in.Artifacts))
		}
		for name, url := range in.Artifacts {
			cur.Artifacts[name] = url
		}
	}

	snapshot := cur.Clone()
	r.notify(snapshot)
	return snapshot, nil
}

// Get returns a snapshot of the job with the given id.
func (r *Registry) Get(id string) (model.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return job.Clone(), true
}

// ActiveIDs returns the ids of all non-terminal jobs: the poll target set.
func (r *Registry) ActiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, job := range r.jobs {
		if !job.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// ChildrenOf returns snapshots of all jobs derived from the given parent.
func (r *Registry) ChildrenOf(parentID string) []model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	var children []model.Job
	for _, job := range r.jobs {
		if job.ParentID == parentID {
			children = append(children, job.Clone())
		}
	}
	return children
}

// Subscribe registers a listener invoked on every accepted Upsert.
func (r *Registry) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// markPolled records poll bookkeeping without notifying listeners: a status
// check is not a state change. Failed polls bump the attempt counter; the
// session deadline, not the counter, decides when to give up.
func (r *Registry) markPolled(ids []string, failed bool) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		job, ok := r.jobs[id]
		if !ok {
			continue
		}
		job.LastPolledAt = &now
		if failed {
			job.PollAttempts++
		}
	}
}

func (r *Registry) notify(job model.Job) {
	for _, l := range r.listeners {
		l(job)
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
