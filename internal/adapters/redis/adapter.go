package redis

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/adapters/memory"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

const DefaultChannelPrefix = "roomcast"

var _ core.Adapter = (*Adapter)(nil)

// envelope is one broadcast as it travels between nodes.
type envelope struct {
	UID      string              `json:"uid"`
	Packet   *domain.Packet      `json:"packet"`
	Rooms    []domain.Room       `json:"rooms,omitempty"`
	Except   []domain.EndpointID `json:"except,omitempty"`
	Volatile bool                `json:"volatile,omitempty"`
}

// Adapter keeps membership in a local memory adapter and mirrors every
// non-local broadcast to the other nodes of the namespace.
type Adapter struct {
	*memory.Adapter

	uid     string
	bus     Bus
	channel string
	cancel  context.CancelFunc
}

// New subscribes to the namespace channel. The subscription ends with Close.
func New(ctx context.Context, local *memory.Adapter, bus Bus, prefix string) (*Adapter, error) {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	a := &Adapter{
		Adapter: local,
		uid:     uuid.NewString(),
		bus:     bus,
		channel: prefix + "#" + local.Nsp() + "#",
	}
	subCtx, cancel := context.WithCancel(ctx)
	if err := bus.Subscribe(subCtx, a.channel, a.onMessage); err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", a.channel, err)
	}
	a.cancel = cancel
	log.Info().Str("module", "adapters.redis").Str("nsp", local.Nsp()).Str("uid", a.uid).Msg("adapter subscribed")
	return a, nil
}

func (a *Adapter) UID() string { return a.uid }

// Broadcast delivers locally, then publishes unless opts.Flags.Local is set.
// The result counts local recipients only.
func (a *Adapter) Broadcast(ctx context.Context, p *domain.Packet, opts core.BroadcastOptions) (core.PublishResult, error) {
	res, err := a.Adapter.Broadcast(ctx, p, opts)
	if err != nil || opts.Flags.Local {
		return res, err
	}

	payload, err := json.Marshal(envelope{
		UID:      a.uid,
		Packet:   p,
		Rooms:    opts.Rooms,
		Except:   opts.Except,
		Volatile: opts.Flags.Volatile,
	})
	if err != nil {
		return res, fmt.Errorf("marshal envelope: %w", err)
	}
	if err := a.bus.Publish(ctx, a.channel, payload); err != nil {
		return res, fmt.Errorf("publish %s: %w", a.channel, err)
	}
	return res, nil
}

func (a *Adapter) onMessage(channel string, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Warn().Err(err).Str("module", "adapters.redis").Str("channel", channel).Msg("bad envelope")
		return
	}
	if env.UID == a.uid || env.Packet == nil {
		return
	}
	opts := core.BroadcastOptions{
		Rooms:  env.Rooms,
		Except: env.Except,
		Flags:  core.Flags{Volatile: env.Volatile, Local: true},
	}
	res, err := a.Adapter.Broadcast(context.Background(), env.Packet, opts)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.redis").Str("channel", channel).Str("from", env.UID).Msg("remote broadcast")
		return
	}
	log.Debug().Str("module", "adapters.redis").Str("from", env.UID).Int("sent_to", res.Dispatched).Msg("remote broadcast")
}

// Close ends the subscription and closes the local adapter.
func (a *Adapter) Close() error {
	a.cancel()
	return a.Adapter.Close()
}
