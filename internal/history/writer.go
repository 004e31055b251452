package history

import (
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gooeystudio/api/internal/model"
)

const (
	// TaskTypeAppend is the asynq task that persists one completed job.
	TaskTypeAppend = "history:append"

	// Queue is the asynq queue for history tasks. It runs with a weight that
	// keeps processing serial so append order matches transition order.
	Queue = "history"
)

// NewAppendTask builds the asynq task carrying a completed job.
func NewAppendTask(job model.Job) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAppend, data), nil
}

// Writer bridges the registry subscription to the history queue. The
// subscription callback runs on the upsert path and must not do I/O, so
// completed jobs are handed to a buffered channel and enqueued from a
// dedicated goroutine.
type Writer struct {
	client *asynq.Client
	jobs   chan model.Job
	done   chan struct{}
}

// NewWriter creates a writer that enqueues through the given asynq client.
func NewWriter(client *asynq.Client) *Writer {
	return &Writer{
		client: client,
		jobs:   make(chan model.Job, 64),
		done:   make(chan struct{}),
	}
}

// Start launches the enqueue loop.
func (w *Writer) Start() {
	go w.loop()
}

// JobUpdated is the registry listener. Only complete jobs reach history.
func (w *Writer) JobUpdated(job model.Job) {
	if job.Status != model.StatusComplete {
		return
	}
	select {
	case w.jobs <- job:
	default:
		log.Printf("[History] writer backlog full, dropping job %s", job.ID)
	}
}

// Close drains pending jobs and stops the loop.
func (w *Writer) Close() {
	close(w.jobs)
	<-w.done
}

func (w *Writer) loop() {
	defer close(w.done)
	for job := range w.jobs {
		task, err := NewAppendTask(job)
		if err != nil {
			log.Printf("[History] failed to build append task for job %s: %v", job.ID, err)
			continue
		}
		_, err = w.client.Enqueue(task,
			asynq.Queue(Queue),
			asynq.MaxRetry(3),
			asynq.Retention(24*time.Hour),
		)
		if err != nil {
			log.Printf("[History] failed to enqueue job %s: %v", job.ID, err)
		}
	}
}
