package model

import "testing"

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{StatusComplete, StatusError, StatusTimedOut, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	active := []JobStatus{StatusSubmitted, StatusStreaming}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestJobStatusCanTransition(t *testing.T) {
	tests := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{StatusSubmitted, StatusStreaming, true},
		{StatusSubmitted, StatusComplete, true},
		{StatusSubmitted, StatusError, true},
		{StatusSubmitted, StatusTimedOut, true},
		{StatusSubmitted, StatusCancelled, true},
		{StatusStreaming, StatusComplete, true},
		{StatusStreaming, StatusError, true},
		{StatusStreaming, StatusTimedOut, true},
		{StatusStreaming, StatusCancelled, true},
		{StatusStreaming, StatusSubmitted, false},
		{StatusComplete, StatusError, false},
		{StatusComplete, StatusStreaming, false},
		{StatusError, StatusComplete, false},
		{StatusTimedOut, StatusComplete, false},
		{StatusCancelled, StatusStreaming, false},
		// staying put is never a transition
		{StatusComplete, StatusComplete, true},
		{StatusStreaming, StatusStreaming, true},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestJobCloneIsIndependent(t *testing.T) {
	job := Job{
		ID:        "task-1",
		Kind:      KindGeneration,
		Status:    StatusComplete,
		Payload:   Payload{"prompt": "a song"},
		Artifacts: Artifacts{"audio": "https://cdn.example.com/a.mp3"},
	}

	clone := job.Clone()
	clone.Payload["prompt"] = "changed"
	clone.Artifacts["audio"] = "changed"

	if job.Payload["prompt"] != "a song" {
		t.Errorf("clone shares payload map with original")
	}
	if job.Artifacts["audio"] != "https://cdn.example.com/a.mp3" {
		t.Errorf("clone shares artifacts map with original")
	}
}

func TestJobTitle(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want string
	}{
		{"explicit title", Job{Kind: KindGeneration, Payload: Payload{"title": "My Song", "prompt": "x"}}, "My Song"},
		{"prompt fallback", Job{Kind: KindGeneration, Payload: Payload{"prompt": "upbeat jazz"}}, "upbeat jazz"},
		{"kind fallback", Job{Kind: KindStemSeparation}, "stem_separation"},
		{"nil payload", Job{Kind: KindCover}, "cover"},
	}

	for _, tt := range tests {
		if got := tt.job.Title(); got != tt.want {
			t.Errorf("%s: Title() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
