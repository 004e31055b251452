package orchestrator

import (
	"errors"
	"testing"

	"github.com/gooeystudio/api/internal/model"
)

func TestRegistryInsertDefaults(t *testing.T) {
	r := NewRegistry()

	job, err := r.Upsert(model.Job{ID: "task-1", Kind: model.KindGeneration})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if job.Status != model.StatusSubmitted {
		t.Errorf("expected default status submitted, got %s", job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}
	if job.CompletedAt != nil {
		t.Errorf("expected no CompletedAt on a fresh job")
	}
}

func TestRegistryUpsertRequiresID(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Upsert(model.Job{Kind: model.KindGeneration}); err == nil {
		t.Fatalf("expected error for missing job id")
	}
}

func TestRegistryInsertStripsArtifactsWhenNotComplete(t *testing.T) {
	r := NewRegistry()

	job, err := r.Upsert(model.Job{
		ID:        "task-1",
		Status:    model.StatusStreaming,
		Artifacts: model.Artifacts{"audio": "https://cdn.example.com/a.mp3"},
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if len(job.Artifacts) != 0 {
		t.Errorf("artifacts must be empty on a non-complete job, got %v", job.Artifacts)
	}
}

func TestRegistryLifecycleMerge(t *testing.T) {
	r := NewRegistry()
	mustUpsert(t, r, model.Job{ID: "task-1", Kind: model.KindGeneration})

	job := mustUpsert(t, r, model.Job{ID: "task-1", Status: model.StatusStreaming, Progress: 40})
	if job.Status != model.StatusStreaming || job.Progress != 40 {
		t.Fatalf("expected streaming/40, got %s/%d", job.Status, job.Progress)
	}

	job = mustUpsert(t, r, model.Job{
		ID:        "task-1",
		Status:    model.StatusComplete,
		Artifacts: model.Artifacts{"audio": "https://cdn.example.com/a.mp3"},
	})
	if job.Status != model.StatusComplete {
		t.Fatalf("expected complete, got %s", job.Status)
	}
	if job.Progress != 100 {
		t.Errorf("completion must snap progress to 100, got %d", job.Progress)
	}
	if job.Artifacts["audio"] == "" {
		t.Errorf("expected artifact to be recorded on completion")
	}
	if job.CompletedAt == nil {
		t.Errorf("expected CompletedAt on terminal job")
	}
}

func TestRegistryTerminalIsImmutable(t *testing.T) {
	r := NewRegistry()
	mustUpsert(t, r, model.Job{ID: "task-1", Status: model.StatusComplete})

	_, err := r.Upsert(model.Job{ID: "task-1", Status: model.StatusError})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	job, _ := r.Get("task-1")
	if job.Status != model.StatusComplete {
		t.Errorf("rejected transition must leave the job untouched, got %s", job.Status)
	}
}

func TestRegistryProgressNeverRegresses(t *testing.T) {
	r := NewRegistry()
	mustUpsert(t, r, model.Job{ID: "task-1", Status: model.StatusStreaming, Progress: 60})

	job := mustUpsert(t, r, model.Job{ID: "task-1", Progress: 30})
	if job.Progress != 60 {
		t.Errorf("progress regressed from 60 to %d", job.Progress)
	}

	job = mustUpsert(t, r, model.Job{ID: "task-1", Progress: 250})
	if job.Progress != 100 {
		t.Errorf("expected progress clamped to 100, got %d", job.Progress)
	}
}

func TestRegistryArtifactsIgnoredWhileActive(t *testing.T) {
	r := NewRegistry()
	mustUpsert(t, r, model.Job{ID: "task-1", Status: model.StatusStreaming})

	job := mustUpsert(t, r, model.Job{
		ID:        "task-1",
		Artifacts: model.Artifacts{"audio": "https://cdn.example.com/a.mp3"},
	})
	if len(job.Artifacts) != 0 {
		t.Errorf("artifacts applied to a streaming job: %v", job.Artifacts)
	}
}

func TestRegistryActiveIDs(t *testing.T) {
	r := NewRegistry()
	mustUpsert(t, r, model.Job{ID: "a", Status: model.StatusSubmitted})
	mustUpsert(t, r, model.Job{ID: "b", Status: model.StatusStreaming})
	mustUpsert(t, r, model.Job{ID: "c", Status: model.StatusComplete})
	mustUpsert(t, r, model.Job{ID: "d", Status: model.StatusCancelled})

	active := r.ActiveIDs()
	if len(active) != 2 {
		t.Fatalf("expected two active jobs, got %v", active)
	}
	for _, id := range active {
		if id != "a" && id != "b" {
			t.Errorf("unexpected active id %s", id)
		}
	}
}

func TestRegistryChildrenOf(t *testing.T) {
	r := NewRegistry()
	mustUpsert(t, r, model.Job{ID: "parent", Status: model.StatusComplete})
	mustUpsert(t, r, model.Job{ID: "child-1", ParentID: "parent"})
	mustUpsert(t, r, model.Job{ID: "child-2", ParentID: "parent"})
	mustUpsert(t, r, model.Job{ID: "other"})

	children := r.ChildrenOf("parent")
	if len(children) != 2 {
		t.Fatalf("expected two children, got %d", len(children))
	}
}

func TestRegistryListenerOrderMatchesTransitionOrder(t *testing.T) {
	r := NewRegistry()

	var first, second []model.JobStatus
	r.Subscribe(func(job model.Job) { first = append(first, job.Status) })
	r.Subscribe(func(job model.Job) { second = append(second, job.Status) })

	mustUpsert(t, r, model.Job{ID: "task-1"})
	mustUpsert(t, r, model.Job{ID: "task-1", Status: model.StatusStreaming})
	mustUpsert(t, r, model.Job{ID: "task-1", Status: model.StatusComplete})

	want := []model.JobStatus{model.StatusSubmitted, model.StatusStreaming, model.StatusComplete}
	for i, s := range want {
		if first[i] != s || second[i] != s {
			t.Fatalf("listener order diverged at %d: first=%v second=%v", i, first, second)
		}
	}
}

func TestRegistryRejectedUpsertDoesNotNotify(t *testing.T) {
	r := NewRegistry()
	mustUpsert(t, r, model.Job{ID: "task-1", Status: model.StatusComplete})

	var calls int
	r.Subscribe(func(job model.Job) { calls++ })

	r.Upsert(model.Job{ID: "task-1", Status: model.StatusStreaming})
	if calls != 0 {
		t.Errorf("rejected transition must not notify listeners, got %d calls", calls)
	}
}

func mustUpsert(t *testing.T, r *Registry, in model.Job) model.Job {
	t.Helper()
	job, err := r.Upsert(in)
	if err != nil {
		t.Fatalf("upsert %s failed: %v", in.ID, err)
	}
	return job
}
