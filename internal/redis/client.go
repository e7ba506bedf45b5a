package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configure the connection shared by the calendar store and the
// practitioner locks.
type Options struct {
	Addr     string
	Username string
	Password string
	// PoolSize defaults to 20. A booking holds a connection while it polls
	// for a practitioner lock, so size it with the expected booking burst.
	PoolSize int
}

// Connect dials Redis and pings it once. The caller bounds the ping with ctx.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 20
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:                  opts.Addr,
		Username:              opts.Username,
		Password:              opts.Password,
		PoolSize:              opts.PoolSize,
		MinIdleConns:          max(1, opts.PoolSize/10),
		DialTimeout:           2 * time.Second,
		ReadTimeout:           time.Second,
		WriteTimeout:          time.Second,
		ContextTimeoutEnabled: true,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", opts.Addr, err)
	}
	return rdb, nil
}
