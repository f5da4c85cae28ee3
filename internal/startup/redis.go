package startup

import (
	"context"
	"time"

	"github.com/portfolio/internal/logger"
	redisstorage "github.com/portfolio/internal/storage/redis"
)

// ConnectRedisWithRetry connects to Redis with backoff. Unlike the database,
// Redis is optional: after maxWait the caller gets nil and falls back to the
// in-memory limiter.
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration, logPrefix string) *redisstorage.Client {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := redisstorage.New(ctx, redisURL)
		cancel()
		if err == nil {
			return client
		}
		if time.Now().After(deadline) {
			logger.Errorf("%sredis unavailable (gave up after %v): %v", logPrefix, maxWait, err)
			return nil
		}
		logger.Errorf("%sredis connect failed, retry in %v: %v", logPrefix, backoff, err)
		time.Sleep(backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
