package model

import "time"

// JobKind tags what a generation job produces. The set is open: new studio
// features add kinds without touching the lifecycle code.
type JobKind string

const (
	KindGeneration       JobKind = "generation"
	KindExtension        JobKind = "extension"
	KindStemSeparation   JobKind = "stem_separation"
	KindFormatConversion JobKind = "format_conversion"
	KindLyrics           JobKind = "lyrics_generation"
	KindCover            JobKind = "cover"
	KindVocalAdd         JobKind = "vocal_add"
)

// JobStatus is the lifecycle state of a job. Every provider-specific status
// vocabulary is collapsed into these six states so one polling and UI-binding
// mechanism serves all job kinds.
type JobStatus string

const (
	StatusSubmitted JobStatus = "submitted"
	StatusStreaming JobStatus = "streaming"
	StatusComplete  JobStatus = "complete"
	StatusError     JobStatus = "error"
	StatusTimedOut  JobStatus = "timed_out"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transition is permitted from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusError, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Staying on the same status is not a transition and is always allowed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusSubmitted:
		switch next {
		case StatusStreaming, StatusComplete, StatusError, StatusTimedOut, StatusCancelled:
			return true
		}
	case StatusStreaming:
		switch next {
		case StatusComplete, StatusError, StatusTimedOut, StatusCancelled:
			return true
		}
	}
	return false
}

// Payload carries the request parameters of a job (prompt, model, style tags).
// The orchestrator never interprets it; it is preserved for retry and remix.
type Payload map[string]interface{}

// Artifacts maps artifact names (audio, image, video, wav, stems) to URLs.
// Populated only once a job is complete.
type Artifacts map[string]string

// Job is one tracked unit of generation work, keyed by the provider task id.
type Job struct {
	ID            string     `json:"id"`
	Kind          JobKind    `json:"kind"`
	Status        JobStatus  `json:"status"`
	Progress      int        `json:"progress"`
	StatusMessage string     `json:"statusMessage,omitempty"`
	Payload       Payload    `json:"payload,omitempty"`
	Artifacts     Artifacts  `json:"artifacts,omitempty"`
	ParentID      string     `json:"parentId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	LastPolledAt  *time.Time `json:"lastPolledAt,omitempty"`
	PollAttempts  int        `json:"pollAttempts"`
}

// Clone returns a deep copy so registry snapshots can be handed out without
// sharing the payload and artifact maps.
func (j Job) Clone() Job {
	out := j
	if j.Payload != nil {
		out.Payload = make(Payload, len(j.Payload))
		for k, v := range j.Payload {
			out.Payload[k] = v
		}
	}
	if j.Artifacts != nil {
		out.Artifacts = make(Artifacts, len(j.Artifacts))
		for k, v := range j.Artifacts {
			out.Artifacts[k] = v
		}
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.LastPolledAt != nil {
		t := *j.LastPolledAt
		out.LastPolledAt = &t
	}
	return out
}

// Title returns a display label for history lists: explicit title first,
// then the prompt, then the kind.
func (j Job) Title() string {
	if j.Payload != nil {
		if title, ok := j.Payload["title"].(string); ok && title != "" {
			return title
		}
		if prompt, ok := j.Payload["prompt"].(string); ok && prompt != "" {
			return prompt
		}
	}
	return string(j.Kind)
}
