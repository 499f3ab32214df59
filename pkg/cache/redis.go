package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var ErrClosed = errors.New("redis connection closed")

// Redis is a connected client together with the settings it was opened with.
type Redis struct {
	Cfg    Config
	Client *redis.Client
}

// Init dials Redis and fails unless it answers a ping within the dial timeout.
func Init(ctx context.Context, c Config) (*Redis, error) {
	c = c.withDefaults()
	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: c.DialTimeout,
	})

	r := &Redis{Cfg: c, Client: rdb}
	if err := r.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return r, nil
}

// Ping checks the connection, bounded by the dial timeout.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return ErrClosed
	}
	pctx, cancel := context.WithTimeout(ctx, r.Cfg.DialTimeout)
	defer cancel()
	if err := r.Client.Ping(pctx).Err(); err != nil {
		return fmt.Errorf("ping redis %s db %d: %w", r.Cfg.Addr, r.Cfg.DB, err)
	}
	return nil
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	err := r.Client.Close()
	r.Client = nil
	return err
}
