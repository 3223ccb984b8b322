package store

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/mietcheck/mietcheck/pkg/models"
)

// Redis key prefixes, one namespace per lifecycle map.
const (
	pendingKeyPrefix   = "mietcheck:pending:"
	activeKeyPrefix    = "mietcheck:active:"
	completedKeyPrefix = "mietcheck:completed:"
	refundKeyPrefix    = "mietcheck:refund:"

	// activeTTL is a safety bound only: the orchestrator clears the
	// marker on settle, but a crashed process must not leave sessions
	// stuck active forever.
	activeTTL = 2 * time.Hour
)

// RedisStore implements Store on Redis. TTLs are enforced natively per
// key, so Sweep is a no-op; TryActivate and MarkRefunded rely on SETNX
// for their check-and-set guarantee.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// PutPending implements Store.
func (s *RedisStore) PutPending(ctx context.Context, sessionID string, in *models.PendingInput) error {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	val, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal pending input: %w", err)
	}
	return s.client.Set(ctx, pendingKeyPrefix+sessionID, val, PendingTTL).Err()
}

// GetPending implements Store. Returns nil when absent.
func (s *RedisStore) GetPending(ctx context.Context, sessionID string) (*models.PendingInput, error) {
	val, err := s.client.Get(ctx, pendingKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var in models.PendingInput
	if err := json.Unmarshal(val, &in); err != nil {
		return nil, fmt.Errorf("unmarshal pending input: %w", err)
	}
	return &in, nil
}

// DeletePending implements Store.
func (s *RedisStore) DeletePending(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, pendingKeyPrefix+sessionID).Err()
}

// TryActivate implements Store. SETNX supplies the atomic check-and-set;
// a session that already settled is rolled back and reported inactive.
func (s *RedisStore) TryActivate(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, activeKeyPrefix+sessionID, 1, activeTTL).Result()
	if err != nil || !ok {
		return false, err
	}

	settled, err := s.client.Exists(ctx, completedKeyPrefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	if settled > 0 {
		_ = s.client.Del(ctx, activeKeyPrefix+sessionID).Err()
		return false, nil
	}
	return true, nil
}

// Deactivate implements Store.
func (s *RedisStore) Deactivate(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, activeKeyPrefix+sessionID).Err()
}

// IsActive implements Store.
func (s *RedisStore) IsActive(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, activeKeyPrefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ActiveCount implements Store.
func (s *RedisStore) ActiveCount(ctx context.Context) (int, error) {
	var count int
	iter := s.client.Scan(ctx, 0, activeKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count, iter.Err()
}

// GetCompleted implements Store. Returns nil when absent.
func (s *RedisStore) GetCompleted(ctx context.Context, sessionID string) (*models.CompletedRecord, error) {
	val, err := s.client.Get(ctx, completedKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec models.CompletedRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal completed record: %w", err)
	}
	return &rec, nil
}

// DeleteCompleted implements Store.
func (s *RedisStore) DeleteCompleted(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, completedKeyPrefix+sessionID).Err()
}

// Settle implements Store. The three writes go through one transaction
// pipeline so no observer sees the session both active and completed.
func (s *RedisStore) Settle(ctx context.Context, sessionID string, rec *models.CompletedRecord) error {
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal completed record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, completedKeyPrefix+sessionID, val, CompletedTTL)
	pipe.Del(ctx, activeKeyPrefix+sessionID)
	pipe.Del(ctx, pendingKeyPrefix+sessionID)
	_, err = pipe.Exec(ctx)
	return err
}

// MarkRefunded implements Store.
func (s *RedisStore) MarkRefunded(ctx context.Context, sessionID string) (bool, error) {
	return s.client.SetNX(ctx, refundKeyPrefix+sessionID, 1, CompletedTTL).Result()
}

// Sweep implements Store. Redis evicts expired keys itself.
func (s *RedisStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
