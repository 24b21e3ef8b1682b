// Package redis opens the connection shared by the context and embedding caches.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	options "github.com/kart-io/cyplan/pkg/options/redis"
)

// printer forwards go-redis internal messages at debug level.
type printer struct{}

func (printer) Printf(ctx context.Context, format string, v ...any) {
	logger.Global().WithCtx(ctx).Debugf(format, v...)
}

func init() {
	goredis.SetLogger(printer{})
}

// Client is a verified connection to one redis database.
type Client struct {
	rdb *goredis.Client
}

// New connects and pings redis. The ping is bounded by ctx, so callers can
// decide how long startup may wait before running without a cache.
func New(ctx context.Context, opts *options.Options) (*Client, error) {
	if opts == nil {
		return nil, errors.New("redis: nil options")
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("redis: %w", utilerrors.NewAggregate(errs))
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.Database,
		MaxRetries:   opts.MaxRetries,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolTimeout:  opts.PoolTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", opts.Addr(), err)
	}
	return &Client{rdb: rdb}, nil
}

// Client exposes the go-redis client for cache implementations.
func (c *Client) Client() *goredis.Client { return c.rdb }

func (c *Client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *Client) Close() error { return c.rdb.Close() }
