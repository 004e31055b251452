package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/gooeystudio/api/internal/auth"
	"github.com/gooeystudio/api/internal/client"
	"github.com/gooeystudio/api/internal/config"
	"github.com/gooeystudio/api/internal/handler"
	"github.com/gooeystudio/api/internal/history"
	"github.com/gooeystudio/api/internal/middleware"
	"github.com/gooeystudio/api/internal/model"
	"github.com/gooeystudio/api/internal/orchestrator"
)

const testJWTSecret = "test-secret-for-e2e"

// fakeProvider is a scripted generation backend for end-to-end tests.
type fakeProvider struct {
	mu        sync.Mutex
	nextID    int
	submitErr error
	statuses  map[string]client.StatusUpdate
	cancelled []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{statuses: make(map[string]client.StatusUpdate)}
}

func (f *fakeProvider) SubmitJob(ctx context.Context, kind model.JobKind, payload model.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.nextID++
	id := fmt.Sprintf("task-%d", f.nextID)
	f.statuses[id] = client.StatusUpdate{ID: id, Found: true, Status: model.StatusStreaming, Progress: 10}
	return id, nil
}

func (f *fakeProvider) CheckStatus(ctx context.Context, ids []string) ([]client.StatusUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	updates := make([]client.StatusUpdate, 0, len(ids))
	for _, id := range ids {
		if u, ok := f.statuses[id]; ok {
			updates = append(updates, u)
		} else {
			updates = append(updates, client.StatusUpdate{ID: id})
		}
	}
	return updates, nil
}

func (f *fakeProvider) CancelJob(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

// complete marks a task finished so the next poll observes it.
func (f *fakeProvider) complete(id string, artifacts model.Artifacts) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = client.StatusUpdate{ID: id, Found: true, Status: model.StatusComplete, Progress: 100, Artifacts: artifacts}
}

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	orch     *orchestrator.Orchestrator
	provider *fakeProvider
	store    *history.Store
	redis    *redis.Client
}

// setupApp creates a Fiber app wired like main.go but against a scripted
// provider and fast polling.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Redis (localhost — must be running for history and rate limiting)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})
	t.Cleanup(func() { redisClient.Close() })

	validate := validator.New()
	provider := newFakeProvider()

	polling := config.PollingConfig{
		Default: config.PollPolicy{Interval: 10 * time.Millisecond, Deadline: 2 * time.Second},
	}
	orch := orchestrator.NewWithConfig(provider, polling)
	t.Cleanup(orch.Close)

	historyStore := history.NewStore(redisClient, 10)

	// Handlers
	jobsHandler := handler.NewJobsHandler(orch, validate)
	historyHandler := handler.NewHistoryHandler(historyStore)
	authHandler := handler.NewAuthHandler(nil, testJWTSecret)

	// Auth middleware — legacy HMAC only
	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"provider": true,
				"r2":       false,
				"auth":     true,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	// API routes (authenticated)
	api := app.Group("/api", authMiddleware.Authenticate())

	// Use very high rate limits so tests don't get blocked
	jobs := api.Group("/jobs")
	jobs.Post("/", rateLimiter.SubmitLimit(10000), jobsHandler.Submit)
	jobs.Get("/:jobId", jobsHandler.Status)
	jobs.Get("/:jobId/children", jobsHandler.Children)
	jobs.Post("/:jobId/cancel", jobsHandler.Cancel)
	jobs.Post("/:jobId/derive", rateLimiter.DeriveLimit(10000), jobsHandler.Derive)

	hist := api.Group("/history", rateLimiter.HistoryLimit(10000))
	hist.Get("/", historyHandler.List)
	hist.Delete("/", historyHandler.Clear)

	return &testApp{
		app:      app,
		orch:     orch,
		provider: provider,
		store:    historyStore,
		redis:    redisClient,
	}
}

// requireRedis skips the test when the local Redis is unavailable.
func requireRedis(t *testing.T, ta *testApp) {
	t.Helper()
	if err := ta.redis.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "gooeystudio-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// waitForStatus polls the job endpoint until the wanted lifecycle state shows.
func waitForStatus(t *testing.T, ta *testApp, jobID string, want string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := doAuthRequest(t, ta.app, "GET", "/api/jobs/"+jobID, "")
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		data := parseJSON(t, resp)
		if data["status"] == want {
			return data
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}
