package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// LockRepository provides the Redis-backed single-flight locks: one per
// question to stop two generations racing on the same answer row, and one
// per document to serialize index writes. Locks carry a TTL so a crashed
// worker cannot wedge a question forever.
type LockRepository interface {
	AcquireGenerationLock(ctx context.Context, questionID string, ttl time.Duration) (bool, error)
	ReleaseGenerationLock(ctx context.Context, questionID string) error
	AcquireIndexLock(ctx context.Context, documentID string, ttl time.Duration) (bool, error)
	ReleaseIndexLock(ctx context.Context, documentID string) error
}

type lockRepository struct {
	redisClient *redis.Client
}

// NewLockRepository creates a LockRepository.
func NewLockRepository(redisClient *redis.Client) LockRepository {
	return &lockRepository{redisClient: redisClient}
}

func (r *lockRepository) generationKey(questionID string) string {
	return "genlock:" + questionID
}

func (r *lockRepository) indexKey(documentID string) string {
	return "indexlock:" + documentID
}

func (r *lockRepository) AcquireGenerationLock(ctx context.Context, questionID string, ttl time.Duration) (bool, error) {
	return r.redisClient.SetNX(ctx, r.generationKey(questionID), 1, ttl).Result()
}

func (r *lockRepository) ReleaseGenerationLock(ctx context.Context, questionID string) error {
	return r.redisClient.Del(ctx, r.generationKey(questionID)).Err()
}

func (r *lockRepository) AcquireIndexLock(ctx context.Context, documentID string, ttl time.Duration) (bool, error) {
	return r.redisClient.SetNX(ctx, r.indexKey(documentID), 1, ttl).Result()
}

func (r *lockRepository) ReleaseIndexLock(ctx context.Context, documentID string) error {
	return r.redisClient.Del(ctx, r.indexKey(documentID)).Err()
}
