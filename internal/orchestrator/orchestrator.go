package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gooeystudio/api/internal/client"
	"github.com/gooeystudio/api/internal/config"
	"github.com/gooeystudio/api/internal/model"
)

var (
	// ErrJobTerminal is returned when cancelling a job that already reached a
	// terminal state.
	ErrJobTerminal = errors.New("job already terminal")

	// ErrParentNotComplete is returned when deriving from a parent job that
	// has not completed; only completed jobs carry artifacts to derive from.
	ErrParentNotComplete = errors.New("parent job is not complete")
)

// cancelTimeout bounds the best-effort provider abort; local state never
// waits on it.
const cancelTimeout = 15 * time.Second

// Orchestrator is the public entry point for generation jobs: submit, cancel,
// query, derive, subscribe. It owns the registry and the poller and runs
// polling sessions on its own base context so they outlive the HTTP request
// that started them.
type Orchestrator struct {
	registry *Registry
	poller   *Poller
	provider client.Provider

	baseCtx context.Context
	cancel  context.CancelFunc

	// in-flight idempotency keys; cleared when the job goes terminal.
	// Guarded by keyMu, which is never held across a registry call.
	keyMu      sync.Mutex
	inflight   map[string]string // key -> job id
	inflightID map[string]string // job id -> key
}

// New wires an orchestrator from its collaborators.
func New(registry *Registry, poller *Poller, provider client.Provider) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		registry:   registry,
		poller:     poller,
		provider:   provider,
		baseCtx:    ctx,
		cancel:     cancel,
		inflight:   make(map[string]string),
		inflightID: make(map[string]string),
	}
	// Piggyback on the subscription stream to expire idempotency keys.
	registry.Subscribe(o.onJobUpdated)
	return o
}

// NewWithConfig is the production constructor: registry and poller are built
// internally from the polling configuration.
func NewWithConfig(provider client.Provider, polling config.PollingConfig) *Orchestrator {
	registry := NewRegistry()
	poller := NewPoller(registry, provider, polling)
	return New(registry, poller, provider)
}

// Close stops all polling sessions and waits for them to exit.
func (o *Orchestrator) Close() {
	o.cancel()
	o.poller.Wait()
}

// Submit sends a job of the given kind to the provider and registers it for
// polling. On synchronous submission failure the job is still recorded, with
// a locally generated id and status error, so the failure stays queryable
// instead of leaving the job in submitted forever.
//
// An optional idempotency key deduplicates in-flight identical requests:
// while a job submitted under the key is non-terminal, resubmitting with the
// same key returns that job instead of hitting the provider again.
func (o *Orchestrator) Submit(ctx context.Context, kind model.JobKind, payload model.Payload, idempotencyKey string) (model.Job, error) {
	if idempotencyKey != "" {
		if job, ok := o.lookupInflight(idempotencyKey); ok {
			log.Printf("[Orchestrator] dedup submit of %s job via idempotency key, returning job %s", kind, job.ID)
			return job, nil
		}
	}

	taskID, err := o.provider.SubmitJob(ctx, kind, payload)
	if err != nil {
		failed, _ := o.registry.Upsert(model.Job{
			ID:            "local-" + uuid.New().String(),
			Kind:          kind,
			Status:        model.StatusError,
			StatusMessage: fmt.Sprintf("Submission failed: %v", err),
			Payload:       payload,
		})
		return failed, fmt.Errorf("submit %s job: %w", kind, err)
	}

	job, err := o.registry.Upsert(model.Job{
		ID:      taskID,
		Kind:    kind,
		Status:  model.StatusSubmitted,
		Payload: payload,
	})
	if err != nil {
		return job, err
	}

	if idempotencyKey != "" {
		o.trackInflight(idempotencyKey, job.ID)
	}

	o.poller.Watch(o.baseCtx, kind, []string{job.ID})
	return job, nil
}

// Cancel marks a job cancelled locally and asks the provider to abort in the
// background. The local transition is unconditional for non-terminal jobs and
// never waits for the provider's acknowledgement.
func (o *Orchestrator) Cancel(id string) (model.Job, error) {
	job, ok := o.registry.Get(id)
	if !ok {
		return model.Job{}, ErrJobNotFound
	}
	if job.Status.Terminal() {
		return job, ErrJobTerminal
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()
		if err := o.provider.CancelJob(ctx, id); err != nil {
			log.Printf("[Orchestrator] provider abort for job %s failed (ignored): %v", id, err)
		}
	}()

	return o.registry.Upsert(model.Job{
		ID:            id,
		Status:        model.StatusCancelled,
		StatusMessage: "Cancelled by user",
	})
}

// Query returns a snapshot of a job by id.
func (o *Orchestrator) Query(id string) (model.Job, bool) {
	return o.registry.Get(id)
}

// Children returns the jobs derived from the given parent.
func (o *Orchestrator) Children(parentID string) []model.Job {
	return o.registry.ChildrenOf(parentID)
}

// Subscribe registers a listener for every accepted job change.
func (o *Orchestrator) Subscribe(l Listener) {
	o.registry.Subscribe(l)
}

// Spawn submits a job derived from a completed parent (stem separation from a
// finished song, wav conversion, a cover). The parent's artifacts are merged
// into the child's payload; afterwards the child's lifecycle is fully
// independent; cancelling the parent does not touch it.
func (o *Orchestrator) Spawn(ctx context.Context, parentID string, kind model.JobKind, payload model.Payload) (model.Job, error) {
	parent, ok := o.registry.Get(parentID)
	if !ok {
		return model.Job{}, ErrJobNotFound
	}
	if parent.Status != model.StatusComplete {
		return model.Job{}, fmt.Errorf("%w: job %s is %s", ErrParentNotComplete, parentID, parent.Status)
	}

	merged := make(model.Payload, len(payload)+len(parent.Artifacts)+1)
	for k, v := range payload {
		merged[k] = v
	}
	merged["parent_task_id"] = parent.ID
	for name, url := range parent.Artifacts {
		key := "parent_" + name
		if _, exists := merged[key]; !exists {
			merged[key] = url
		}
	}

	taskID, err := o.provider.SubmitJob(ctx, kind, merged)
	if err != nil {
		failed, _ := o.registry.Upsert(model.Job{
			ID:            "local-" + uuid.New().String(),
			Kind:          kind,
			ParentID:      parentID,
			Status:        model.StatusError,
			StatusMessage: fmt.Sprintf("Submission failed: %v", err),
			Payload:       merged,
		})
		return failed, fmt.Errorf("spawn %s job from %s: %w", kind, parentID, err)
	}

	child, err := o.registry.Upsert(model.Job{
		ID:       taskID,
		Kind:     kind,
		ParentID: parentID,
		Status:   model.StatusSubmitted,
		Payload:  merged,
	})
	if err != nil {
		return child, err
	}

	o.poller.Watch(o.baseCtx, kind, []string{child.ID})
	return child, nil
}

func (o *Orchestrator) lookupInflight(key string) (model.Job, bool) {
	o.keyMu.Lock()
	id, ok := o.inflight[key]
	o.keyMu.Unlock()
	if !ok {
		return model.Job{}, false
	}
	job, ok := o.registry.Get(id)
	if !ok || job.Status.Terminal() {
		return model.Job{}, false
	}
	return job, true
}

func (o *Orchestrator) trackInflight(key, id string) {
	o.keyMu.Lock()
	o.inflight[key] = id
	o.inflightID[id] = key
	o.keyMu.Unlock()
}

// onJobUpdated runs on the registry notification path; it only touches the
// idempotency maps.
func (o *Orchestrator) onJobUpdated(job model.Job) {
	if !job.Status.Terminal() {
		return
	}
	o.keyMu.Lock()
	if key, ok := o.inflightID[job.ID]; ok {
		delete(o.inflight, key)
		delete(o.inflightID, job.ID)
	}
	o.keyMu.Unlock()
}
