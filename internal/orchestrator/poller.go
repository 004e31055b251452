package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gooeystudio/api/internal/client"
	"github.com/gooeystudio/api/internal/config"
	"github.com/gooeystudio/api/internal/model"
)

// Poller drives every non-terminal job to a terminal state. Each call to
// Watch starts an independent polling session that owns its own timer and
// deadline; concurrent sessions only share the registry, whose upserts are
// serialized. A session ends when none of its jobs are active, the deadline
// expires, or the context is cancelled.
type Poller struct {
	registry *Registry
	provider client.Provider
	polling  config.PollingConfig
	wg       sync.WaitGroup
}

// NewPoller creates a poller over the given registry and provider.
func NewPoller(registry *Registry, provider client.Provider, polling config.PollingConfig) *Poller {
	return &Poller{
		registry: registry,
		provider: provider,
		polling:  polling,
	}
}

// Watch starts a polling session for the given job ids. The kind selects the
// session's interval and deadline. Returns immediately.
func (p *Poller) Watch(ctx context.Context, kind model.JobKind, ids []string) {
	if len(ids) == 0 {
		return
	}
	policy := p.polling.PolicyFor(string(kind))
	tracked := make([]string, len(ids))
	copy(tracked, ids)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, policy, tracked)
	}()
}

// Wait blocks until every session has stopped. Used on shutdown after the
// base context is cancelled.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, policy config.PollPolicy, ids []string) {
	deadline := time.NewTimer(policy.Deadline)
	defer deadline.Stop()
	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()

	log.Printf("[Poller] session started: %d job(s), interval=%s deadline=%s", len(ids), policy.Interval, policy.Deadline)

	// First poll happens immediately, then on every tick.
	for {
		active := p.activeOf(ids)
		if len(active) == 0 {
			log.Printf("[Poller] session done: all jobs terminal")
			return
		}

		p.pollOnce(ctx, active)

		if len(p.activeOf(ids)) == 0 {
			log.Printf("[Poller] session done: all jobs terminal")
			return
		}

		select {
		case <-ctx.Done():
			log.Printf("[Poller] session stopped: %v", ctx.Err())
			return
		case <-deadline.C:
			p.expire(ids, policy.Deadline)
			return
		case <-ticker.C:
		}
	}
}

// pollOnce issues one batched status check and feeds the results into the
// registry. A transport failure only bumps poll attempts; a single failed
// poll must never be mistaken for a provider-side job failure.
func (p *Poller) pollOnce(ctx context.Context, ids []string) {
	updates, err := p.provider.CheckStatus(ctx, ids)
	if err != nil {
		p.registry.markPolled(ids, true)
		log.Printf("[Poller] status check failed for %d job(s), retrying next tick: %v", len(ids), err)
		return
	}
	p.registry.markPolled(ids, false)

	for _, u := range updates {
		if !u.Found {
			// The provider no longer knows this id. Keep waiting; the
			// deadline bounds how long before the job times out.
			log.Printf("[Poller] job %s unknown to provider", u.ID)
			continue
		}
		update := model.Job{
			ID:            u.ID,
			Status:        u.Status,
			Progress:      u.Progress,
			StatusMessage: u.Message,
			Artifacts:     u.Artifacts,
		}
		if _, err := p.registry.Upsert(update); err != nil {
			// Stale or out-of-order response; the registry already rejected
			// and logged the regressing transition.
			continue
		}
	}
}

// expire forces every still-active job of the session to timed_out. The job
// may still complete on the provider's side, so the message points users at
// history rather than claiming failure.
func (p *Poller) expire(ids []string, deadline time.Duration) {
	active := p.activeOf(ids)
	if len(active) == 0 {
		return
	}
	msg := fmt.Sprintf("No result after %s. The provider may still finish this job; check your history later.", deadline)
	for _, id := range active {
		if _, err := p.registry.Upsert(model.Job{ID: id, Status: model.StatusTimedOut, StatusMessage: msg}); err != nil {
			log.Printf("[Poller] failed to time out job %s: %v", id, err)
		}
	}
	log.Printf("[Poller] session deadline exceeded, timed out %d job(s)", len(active))
}

// activeOf filters the session's ids down to those still non-terminal.
func (p *Poller) activeOf(ids []string) []string {
	var active []string
	for _, id := range ids {
		if job, ok := p.registry.Get(id); ok && !job.Status.Terminal() {
			active = append(active, id)
		}
	}
	return active
}
