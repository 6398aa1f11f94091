package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"abExperiments/business/experiment"
	"abExperiments/domain"

	"github.com/redis/go-redis/v9"
)

type cachedVariant struct {
	Variant  string    `json:"variant"`
	CachedAt time.Time `json:"cached_at"`
}

// VariantCache keeps bound variant names in Redis so repeat lookups skip the
// database.
type VariantCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ experiment.VariantCache = (*VariantCache)(nil)

func NewVariantCache(client *redis.Client, ttl time.Duration) *VariantCache {
	return &VariantCache{
		client: client,
		ttl:    ttl,
	}
}

// key format: "ab:variant:{experiment_id}:{user_type}:{user_id}"
func variantKey(key domain.AssignmentKey) string {
	return fmt.Sprintf("ab:variant:%d:%s:%d", key.ExperimentID, key.UserType, key.UserID)
}

func (c *VariantCache) GetVariant(ctx context.Context, key domain.AssignmentKey) (string, bool, error) {
	val, err := c.client.Get(ctx, variantKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get variant from Redis: %w", err)
	}

	var cached cachedVariant
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal cached variant: %w", err)
	}

	return cached.Variant, cached.Variant != "", nil
}

func (c *VariantCache) SetVariant(ctx context.Context, key domain.AssignmentKey, variant string) error {
	jsonData, err := json.Marshal(cachedVariant{Variant: variant, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal cached variant: %w", err)
	}

	if err := c.client.Set(ctx, variantKey(key), jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store variant in Redis: %w", err)
	}

	return nil
}
