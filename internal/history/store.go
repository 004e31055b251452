package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/gooeystudio/api/internal/model"
)

// DefaultLimit caps the history when no limit is configured.
const DefaultLimit = 10

const redisKey = "history:jobs"

// Store keeps a durable, capped, newest-first log of completed jobs in Redis.
// It is the only job state that survives a restart; errors, timeouts and
// cancellations are shown transiently and never persisted.
type Store struct {
	redis *redis.Client
	limit int
}

// NewStore creates a history store with the given cap.
func NewStore(redisClient *redis.Client, limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		redis: redisClient,
		limit: limit,
	}
}

// Limit returns the maximum number of retained entries.
func (s *Store) Limit() int {
	return s.limit
}

// Append records a completed job at the head of the history and evicts the
// oldest entries beyond the cap.
func (s *Store) Append(ctx context.Context, job model.Job) error {
	if job.Status != model.StatusComplete {
		return fmt.Errorf("only complete jobs are recorded in history, got %s", job.Status)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.LPush(ctx, redisKey, data)
	pipe.LTrim(ctx, redisKey, 0, int64(s.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// LoadAll returns the retained jobs, newest first. Corrupt entries are
// skipped so a damaged history degrades instead of breaking startup.
func (s *Store) LoadAll(ctx context.Context) ([]model.Job, error) {
	entries, err := s.redis.LRange(ctx, redisKey, 0, int64(s.limit-1)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	jobs := make([]model.Job, 0, len(entries))
	for _, entry := range entries {
		var job model.Job
		if err := json.Unmarshal([]byte(entry), &job); err != nil {
			log.Printf("[History] skipping corrupt entry: %v", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Clear wipes the history. Explicit user action.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
