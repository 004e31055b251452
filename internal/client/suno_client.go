package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gooeystudio/api/internal/config"
	"github.com/gooeystudio/api/internal/model"
)

// SunoClient implements Provider against the Suno-compatible generation API.
type SunoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewSunoClient creates a new generation API client
func NewSunoClient(cfg *config.ProviderConfig) *SunoClient {
	return &SunoClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// apiEnvelope is the provider's uniform response wrapper.
type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type submitData struct {
	TaskID string `json:"taskId"`
}

type taskStatus struct {
	TaskID    string            `json:"taskId"`
	Status    string            `json:"status"`
	Progress  int               `json:"progress"`
	Message   string            `json:"msg,omitempty"`
	Artifacts map[string]string `json:"artifacts,omitempty"`
}

// taskTypes maps job kinds onto the provider's task_type vocabulary.
var taskTypes = map[model.JobKind]string{
	model.KindGeneration:       "generate_music",
	model.KindExtension:        "extend_music",
	model.KindStemSeparation:   "separate_stem",
	model.KindFormatConversion: "get_wav",
	model.KindLyrics:           "generate_lyrics",
	model.KindCover:            "cover_music",
	model.KindVocalAdd:         "add_vocals",
}

// SubmitJob starts a generation task and returns its provider id.
func (c *SunoClient) SubmitJob(ctx context.Context, kind model.JobKind, payload model.Payload) (string, error) {
	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	taskType, ok := taskTypes[kind]
	if !ok {
		// Unknown kinds pass through verbatim; the kind set is open.
		taskType = string(kind)
	}
	body["task_type"] = taskType

	var data submitData
	if err := c.post(ctx, "/v1/generate", body, &data); err != nil {
		return "", err
	}
	if data.TaskID == "" {
		return "", fmt.Errorf("provider returned no taskId")
	}
	return data.TaskID, nil
}

// CheckStatus fetches status for a batch of task ids in one request.
func (c *SunoClient) CheckStatus(ctx context.Context, ids []string) ([]StatusUpdate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	endpoint := "/v1/status?ids=" + url.QueryEscape(strings.Join(ids, ","))

	var records []taskStatus
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}

	byID := make(map[string]taskStatus, len(records))
	for _, rec := range records {
		byID[rec.TaskID] = rec
	}

	// Answer for every requested id so callers can tell "unknown to the
	// provider" apart from "missing from the response".
	updates := make([]StatusUpdate, 0, len(ids))
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			updates = append(updates, StatusUpdate{ID: id})
			continue
		}
		status, found := normalizeStatus(rec.Status)
		updates = append(updates, StatusUpdate{
			ID:        id,
			Found:     found,
			Status:    status,
			Progress:  rec.Progress,
			Message:   rec.Message,
			Artifacts: rec.Artifacts,
		})
	}
	return updates, nil
}

// CancelJob asks the provider to abort a task.
func (c *SunoClient) CancelJob(ctx context.Context, id string) error {
	return c.post(ctx, fmt.Sprintf("/v1/cancel/%s", id), map[string]string{}, nil)
}

// normalizeStatus collapses the provider's status vocabulary into the job
// state machine. The second return value is false when the provider no longer
// recognizes the task.
func normalizeStatus(raw string) (model.JobStatus, bool) {
	switch strings.ToLower(raw) {
	case "submitted", "queued", "pending", "create_task":
		return model.StatusSubmitted, true
	case "streaming", "processing", "running", "text_success", "first_success":
		return model.StatusStreaming, true
	case "complete", "completed", "success":
		return model.StatusComplete, true
	case "error", "failed", "create_task_failed", "generate_audio_failed", "callback_exception", "sensitive_word_error":
		return model.StatusError, true
	case "not_found", "unknown":
		return "", false
	default:
		// An unfamiliar vocabulary entry is treated as still in flight; the
		// session deadline bounds how long that can last.
		return model.StatusStreaming, true
	}
}

// post sends a POST request with JSON body
func (c *SunoClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *SunoClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the enveloped response.
func (c *SunoClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Provider] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Provider] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Provider] ✗ %s %s — failed to read response: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Provider] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if envelope.Code != 200 {
		return fmt.Errorf("provider API error (code %d): %s", envelope.Code, envelope.Msg)
	}
	if result == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, result); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SunoClient) IsConfigured() bool {
	return c.apiKey != ""
}
