package client

import (
	"context"

	"github.com/gooeystudio/api/internal/model"
)

// Provider is the external collaborator that performs the actual generation
// work. Submission returns an opaque task id immediately; completion is
// observed by polling CheckStatus.
type Provider interface {
	// SubmitJob starts a task of the given kind and returns the provider task id.
	SubmitJob(ctx context.Context, kind model.JobKind, payload model.Payload) (string, error)

	// CheckStatus fetches current status for a batch of task ids. Ids the
	// provider no longer recognizes come back with Found set to false; they
	// never produce an error.
	CheckStatus(ctx context.Context, ids []string) ([]StatusUpdate, error)

	// CancelJob asks the provider to abort a task. Best effort: local state
	// never waits on it.
	CancelJob(ctx context.Context, id string) error
}

// StatusUpdate is one normalized status record from a CheckStatus batch.
type StatusUpdate struct {
	ID        string
	Found     bool
	Status    model.JobStatus
	Progress  int
	Message   string
	Artifacts model.Artifacts
}
