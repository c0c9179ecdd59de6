package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Bus is the pub/sub transport between nodes.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe calls fn for every message on channel until ctx is done.
	// It returns once the subscription is active. The channel name is literal.
	Subscribe(ctx context.Context, channel string, fn func(channel string, payload []byte)) error
}

type RedisBus struct {
	rdb goredis.UniversalClient
}

func NewBus(rdb goredis.UniversalClient) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string, fn func(channel string, payload []byte)) error {
	pubsub := b.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					log.Warn().Str("module", "adapters.redis").Str("channel", channel).Msg("subscription closed")
					return
				}
				fn(msg.Channel, []byte(msg.Payload))
			}
		}
	}()
	return nil
}
