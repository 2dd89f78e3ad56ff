package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"interview-insights-go/internal/types"
)

const redisKeyPrefix = "job:"

// RedisStore keeps each job as a JSON string under job:<id> with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	clock  func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, clock: time.Now}
}

func (s *RedisStore) Write(ctx context.Context, jobID string, u types.JobUpdate) (types.Job, error) {
	cur, err := s.Read(ctx, jobID)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return types.Job{}, err
	}

	next := merge(cur, found, jobID, u, s.clock())
	data, err := json.Marshal(next)
	if err != nil {
		return types.Job{}, fmt.Errorf("encode job: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+jobID, data, s.ttl).Err(); err != nil {
		return types.Job{}, fmt.Errorf("redis set: %w", err)
	}
	return next, nil
}

func (s *RedisStore) Read(ctx context.Context, jobID string) (types.Job, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Job{}, ErrNotFound
	}
	if err != nil {
		return types.Job{}, fmt.Errorf("redis get: %w", err)
	}
	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return types.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
