package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache provides Redis-backed shared state: encoder job status and locks
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(ctx context.Context, host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping is the health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Encoder Status Operations

func encodeStatusKey(handle string) string {
	return fmt.Sprintf("encode:status:%s", handle)
}

// SetEncodeStatus records the latest status of an external encode
func (c *Cache) SetEncodeStatus(ctx context.Context, handle string, status models.ExternalStatus, ttl time.Duration) error {
	return c.SetWithJSON(ctx, encodeStatusKey(handle), status, ttl)
}

// GetEncodeStatus returns the latest status of an external encode. An unknown
// handle yields ErrNotFound.
func (c *Cache) GetEncodeStatus(ctx context.Context, handle string) (*models.ExternalStatus, error) {
	var status models.ExternalStatus
	found, err := c.GetWithJSON(ctx, encodeStatusKey(handle), &status)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("encode %s: %w", handle, models.ErrNotFound)
	}
	return &status, nil
}

// SetWithJSON sets a value with JSON marshaling
func (c *Cache) SetWithJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set value in cache: %w", err)
	}
	return nil
}

// GetWithJSON gets a value with JSON unmarshaling; found is false on a miss
func (c *Cache) GetWithJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil // Cache miss
		}
		return false, fmt.Errorf("failed to get value from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return true, nil
}

// Locking Operations for Distributed Systems

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func lockKey(resource string) string {
	return fmt.Sprintf("lock:%s", resource)
}

// AcquireLock attempts to acquire a distributed lock identified by token
func (c *Cache) AcquireLock(ctx context.Context, resource, token string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, lockKey(resource), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Cache) ReleaseLock(ctx context.Context, resource, token string) error {
	if err := releaseScript.Run(ctx, c.client, []string{lockKey(resource)}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
