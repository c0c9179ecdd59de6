// Package redis spreads broadcasts across server nodes over Redis pub/sub.
// Membership stays node-local; only packets travel.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var (
	ErrInvalidURL        = errors.New("failed to parse redis connection url")
	ErrNotReady          = errors.New("redis did not become ready")
	ErrHealthcheckFailed = errors.New("redis healthcheck failed")
)

type Config struct {
	URL            string
	ChannelPrefix  string
	RetryAttempts  int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
}

// Connect dials Redis and pings it, retrying RetryAttempts times within ConnectTimeout.
func Connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Join(ErrInvalidURL, err)
	}

	for range max(cfg.RetryAttempts, 1) {
		client := goredis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, ErrNotReady
}

// Healthcheck reports whether client answers a ping.
func Healthcheck(client goredis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
