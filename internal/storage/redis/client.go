package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Login attempts: max loginRateLimitMax per loginRateLimitWindow per email.
const (
	loginRateLimitWindow = 600 * time.Second
	loginRateLimitMax    = 10
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Allow checks login_limit:{key}: INCR with an expiry set on the first hit
// in the window. Exceeding the cap yields HTTP 429 at the handler.
func (c *Client) Allow(ctx context.Context, key string) (bool, error) {
	k := "login_limit:" + key
	n, err := c.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, k, loginRateLimitWindow)
	}
	return n <= int64(loginRateLimitMax), nil
}
