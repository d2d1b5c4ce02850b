package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/createarena/arena/logger"

	"github.com/goccy/go-json"
)

const (
	TTLApprovedContests = 2 * time.Minute
	TTLContest          = 5 * time.Minute
)

const (
	KeyApprovedContests = "contests:approved"
	KeyContestPrefix    = "contest:"
)

// ContestKey is the key of one cached contest.
func ContestKey(id string) string {
	return KeyContestPrefix + id
}

// GetJSON loads key into dest; it returns ErrMiss for absent or empty keys.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if val == "" {
		return ErrMiss
	}
	return json.Unmarshal([]byte(val), dest)
}

func (c *Cache) SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.Set(ctx, key, string(data), expiration)
}

// GetOrSet fills dest from the cache, or from fn on a miss. Cache errors never
// fail the call; fn's errors do.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, expiration time.Duration, fn func() (T, error)) (T, error) {
	var dest T
	if c == nil {
		return fn()
	}
	err := c.GetJSON(ctx, key, &dest)
	if err == nil {
		logger.Debugf("Cache hit for key: %s", key)
		return dest, nil
	}
	if !errors.Is(err, ErrMiss) {
		logger.Warningf("Cache read for key %s failed: %v", key, err)
	}

	value, err := fn()
	if err != nil {
		return value, err
	}
	if err := c.SetJSON(ctx, key, value, expiration); err != nil {
		logger.Warningf("Failed to set cache for key %s: %v", key, err)
	}
	return value, nil
}

// InvalidateContests drops every cached contest view.
func (c *Cache) InvalidateContests(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.Delete(ctx, KeyApprovedContests); err != nil {
		logger.Warning("invalidate approved contests:", err)
	}
	if err := c.DeletePattern(ctx, KeyContestPrefix+"*"); err != nil {
		logger.Warning("invalidate contest keys:", err)
	}
}
