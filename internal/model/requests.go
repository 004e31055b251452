package model

import "time"

// SubmitJobRequest is the body of POST /api/jobs.
type SubmitJobRequest struct {
	Kind           string  `json:"kind" validate:"required,min=1,max=64"`
	Payload        Payload `json:"payload"`
	IdempotencyKey string  `json:"idempotencyKey,omitempty" validate:"omitempty,max=128"`
}

// SubmitJobResponse acknowledges an accepted submission.
type SubmitJobResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// DeriveJobRequest is the body of POST /api/jobs/:jobId/derive. The parent's
// artifacts are merged into the payload before submission.
type DeriveJobRequest struct {
	Kind    string  `json:"kind" validate:"required,min=1,max=64"`
	Payload Payload `json:"payload"`
}

// CancelJobResponse reports the locally applied cancellation.
type CancelJobResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// JobListResponse wraps a list of job snapshots (children, history).
type JobListResponse struct {
	Jobs  []Job `json:"jobs"`
	Count int   `json:"count"`
}
