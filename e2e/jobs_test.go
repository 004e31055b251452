package e2e

import (
	"net/http"
	"testing"

	"github.com/gooeystudio/api/internal/model"
)

func validSubmitBody() string {
	return `{
		"kind": "generation",
		"payload": {
			"prompt": "an upbeat summer song",
			"title": "Summer"
		}
	}`
}

func TestSubmitJob_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/", validSubmitBody())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["jobId"] == nil || result["jobId"] == "" {
		t.Error("expected 'jobId' in response")
	}
	if result["status"] != "submitted" {
		t.Errorf("expected status 'submitted', got %v", result["status"])
	}
}

func TestSubmitJob_NoAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/jobs/", validSubmitBody(), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestSubmitJob_MissingKind(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/", `{"payload": {"prompt": "x"}}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected error code VALIDATION_ERROR, got %v", errObj["code"])
	}
}

func TestJobStatus_CompletesViaPolling(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/", validSubmitBody())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	jobID := parseJSON(t, resp)["jobId"].(string)

	// The provider reports streaming first, then completion.
	waitForStatus(t, ta, jobID, "streaming")
	ta.provider.complete(jobID, model.Artifacts{"audio": "https://cdn.example.com/a.mp3"})

	result := waitForStatus(t, ta, jobID, "complete")
	if result["progress"] != float64(100) {
		t.Errorf("expected progress 100, got %v", result["progress"])
	}
	artifacts, ok := result["artifacts"].(map[string]interface{})
	if !ok || artifacts["audio"] == "" {
		t.Errorf("expected artifacts on completed job, got %v", result["artifacts"])
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/does-not-exist", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "NOT_FOUND" {
		t.Errorf("expected error code NOT_FOUND, got %v", errObj["code"])
	}
}

func TestCancelJob_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/", validSubmitBody())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	jobID := parseJSON(t, resp)["jobId"].(string)

	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/"+jobID+"/cancel", "")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["status"] != "cancelled" {
		t.Errorf("expected status 'cancelled', got %v", result["status"])
	}
}

func TestCancelJob_AlreadyTerminal(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/", validSubmitBody())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	jobID := parseJSON(t, resp)["jobId"].(string)

	ta.provider.complete(jobID, nil)
	waitForStatus(t, ta, jobID, "complete")

	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/"+jobID+"/cancel", "")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	assertStatus(t, resp, http.StatusConflict)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "JOB_CONFLICT" {
		t.Errorf("expected error code JOB_CONFLICT, got %v", errObj["code"])
	}
}

func TestDeriveJob_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/", validSubmitBody())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	parentID := parseJSON(t, resp)["jobId"].(string)

	ta.provider.complete(parentID, model.Artifacts{"audio": "https://cdn.example.com/a.mp3"})
	waitForStatus(t, ta, parentID, "complete")

	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/"+parentID+"/derive",
		`{"kind": "stem_separation", "payload": {"stem": "vocals"}}`)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)
	childID := parseJSON(t, resp)["jobId"].(string)

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/"+parentID+"/children", "")
	if err != nil {
		t.Fatalf("children request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["count"] != float64(1) {
		t.Fatalf("expected one child, got %v", result["count"])
	}
	children := result["jobs"].([]interface{})
	child := children[0].(map[string]interface{})
	if child["id"] != childID || child["parentId"] != parentID {
		t.Errorf("unexpected child record: %v", child)
	}
}

func TestDeriveJob_ParentNotComplete(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/", validSubmitBody())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	parentID := parseJSON(t, resp)["jobId"].(string)

	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/"+parentID+"/derive",
		`{"kind": "stem_separation", "payload": {}}`)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}

	assertStatus(t, resp, http.StatusConflict)
}

func TestDeriveJob_ParentNotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/jobs/missing/derive",
		`{"kind": "stem_separation", "payload": {}}`)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}
