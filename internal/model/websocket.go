package model

// WebSocket message types
const (
	WSMessageTypeProgress  = "progress"
	WSMessageTypeComplete  = "complete"
	WSMessageTypeError     = "error"
	WSMessageTypeCancelled = "cancelled"
	WSMessageTypePing      = "ping"
	WSMessageTypePong      = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage is sent while a job is still Submitted or Streaming.
type WSProgressMessage struct {
	Type          string    `json:"type"`
	JobID         string    `json:"jobId"`
	Status        JobStatus `json:"status"`
	Progress      int       `json:"progress"`
	StatusMessage string    `json:"statusMessage,omitempty"`
}

// WSCompleteMessage carries the final job snapshot including artifacts.
type WSCompleteMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
	Job   Job    `json:"job"`
}

// WSErrorMessage is sent on Error and TimedOut transitions. TimedOut carries
// a distinct code so the UI can say "check history later" instead of claiming
// a provider failure.
type WSErrorMessage struct {
	Type   string    `json:"type"`
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
	Error  WSError   `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSCancelledMessage is sent on user-initiated cancellation; not an error.
type WSCancelledMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}
