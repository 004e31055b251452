package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gooeystudio/api/internal/client"
	"github.com/gooeystudio/api/internal/history"
	"github.com/gooeystudio/api/internal/model"
)

// HistoryWorker consumes history:append tasks: it mirrors the completed job's
// artifacts onto durable storage when a storage client is configured, then
// writes the job to the history store. Running it off the upsert path keeps
// registry listeners free of I/O; asynq retries cover transient Redis or
// storage trouble.
type HistoryWorker struct {
	store      *history.Store
	storage    client.StorageClient
	httpClient *http.Client
}

// NewHistoryWorker creates a history worker. storage may be nil; artifact
// URLs then stay pointed at the provider.
func NewHistoryWorker(store *history.Store, storage client.StorageClient) *HistoryWorker {
	return &HistoryWorker{
		store:   store,
		storage: storage,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ProcessTask handles one history:append task.
func (w *HistoryWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var job model.Job
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal history task payload: %w", err)
	}

	if w.storage != nil {
		job.Artifacts = w.mirrorArtifacts(ctx, job)
	}

	if err := w.store.Append(ctx, job); err != nil {
		return fmt.Errorf("failed to append job %s to history: %w", job.ID, err)
	}
	log.Printf("[History] recorded job %s (%s)", job.ID, job.Kind)
	return nil
}

// mirrorArtifacts copies each artifact from the provider's ephemeral URL to
// durable storage and rewrites the URL. A failed mirror keeps the provider
// URL; history is better with a short-lived link than without the entry.
func (w *HistoryWorker) mirrorArtifacts(ctx context.Context, job model.Job) model.Artifacts {
	mirrored := make(model.Artifacts, len(job.Artifacts))
	for name, srcURL := range job.Artifacts {
		url, err := w.mirrorOne(ctx, job.ID, name, srcURL)
		if err != nil {
			log.Printf("[History] mirror of %s for job %s failed, keeping provider URL: %v", name, job.ID, err)
			mirrored[name] = srcURL
			continue
		}
		mirrored[name] = url
	}
	return mirrored
}

func (w *HistoryWorker) mirrorOne(ctx context.Context, jobID, name, srcURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artifact download returned status %d", resp.StatusCode)
	}

	key := fmt.Sprintf("artifacts/%s/%s%s", jobID, name, path.Ext(srcURL))
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return w.storage.Upload(ctx, key, resp.Body, contentType)
}
