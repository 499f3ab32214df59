package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON values in Redis under hashed, prefixed keys.
type Cache struct {
	rdb        *redis.Client
	prefix     string
	defaultTTL time.Duration
}

func New(r *Redis) *Cache {
	c := r.Cfg.withDefaults()
	return &Cache{
		rdb:        r.Client,
		prefix:     c.Prefix,
		defaultTTL: c.DefaultTTL,
	}
}

func (c *Cache) Key(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%s:%s", c.prefix, hex.EncodeToString(sum[:]))
}

// GetJSON reports false with a nil error on a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}
