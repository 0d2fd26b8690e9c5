// Package cache provides a best-effort Redis projection of account kyc_status
// so status reads avoid the database on the hot path. The account table stays
// authoritative; every cache operation may fail without affecting correctness.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	platformredis "verigate/internal/platform/redis"
	"verigate/internal/verification/models"
	"verigate/pkg/platform/sentinel"
)

const keyPrefix = "kyc_status:"

// KYCStatusCache caches the compliance status per user.
type KYCStatusCache struct {
	client *platformredis.Client
	ttl    time.Duration
}

// New returns a cache over the given client. A nil client yields a nil cache;
// callers treat nil as "cache disabled".
func New(client *platformredis.Client, ttl time.Duration) *KYCStatusCache {
	if client == nil {
		return nil
	}
	return &KYCStatusCache{client: client, ttl: ttl}
}

// Get returns the cached status. sentinel.ErrNotFound means a cache miss.
func (c *KYCStatusCache) Get(ctx context.Context, userID uuid.UUID) (models.KYCStatus, error) {
	val, err := c.client.Get(ctx, keyPrefix+userID.String()).Result()
	if err != nil {
		if err == redis.Nil {
			return models.KYCStatusUnset, sentinel.ErrNotFound
		}
		return models.KYCStatusUnset, err
	}
	return models.KYCStatus(val), nil
}

// Set stores the status with the configured TTL.
func (c *KYCStatusCache) Set(ctx context.Context, userID uuid.UUID, status models.KYCStatus) error {
	return c.client.Set(ctx, keyPrefix+userID.String(), string(status), c.ttl).Err()
}
