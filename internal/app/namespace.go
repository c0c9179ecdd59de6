package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

// BroadcastRecorder receives the outcome of every namespace broadcast.
type BroadcastRecorder interface {
	ObserveBroadcast(nsp string, res core.PublishResult)
}

type NamespaceOption func(*Namespace)

func WithPolicy(p Policy) NamespaceOption {
	return func(n *Namespace) { n.policy = p }
}

func WithRecorder(r BroadcastRecorder) NamespaceOption {
	return func(n *Namespace) { n.recorder = r }
}

// WithObserver attaches o to the namespace adapter for the namespace lifetime.
func WithObserver(o func(nsp string) core.Observer) NamespaceOption {
	return func(n *Namespace) { n.observerFn = o }
}

// Namespace is the session layer in front of an adapter: it owns the live
// endpoint registry and delegates membership and fan-out to the adapter.
type Namespace struct {
	name     string
	adapter  core.Adapter
	async    *core.Async
	registry *Registry
	policy   Policy
	recorder BroadcastRecorder

	observerFn func(nsp string) core.Observer
	unobserve  func()
}

func NewNamespace(name string, reg *Registry, adapter core.Adapter, d *core.Deferrer, opts ...NamespaceOption) *Namespace {
	n := &Namespace{
		name:     name,
		adapter:  adapter,
		async:    core.NewAsync(adapter, d),
		registry: reg,
		policy:   SimplePolicy{},
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.observerFn != nil {
		n.unobserve = adapter.Observe(n.observerFn(name))
	}
	return n
}

func (n *Namespace) Name() string          { return n.name }
func (n *Namespace) Adapter() core.Adapter { return n.adapter }
func (n *Namespace) Async() *core.Async    { return n.async }
func (n *Namespace) Registry() *Registry   { return n.registry }

// Connect registers ep and joins it to its own room plus any extra rooms.
func (n *Namespace) Connect(ctx context.Context, id domain.EndpointID, ep core.Endpoint, cancel context.CancelFunc, rooms ...domain.Room) error {
	n.registry.Bind(id, ep, cancel)
	for _, room := range append([]domain.Room{domain.Room(id)}, rooms...) {
		if err := n.adapter.Join(ctx, id, room); err != nil {
			n.registry.Unbind(id)
			_ = n.adapter.LeaveAll(ctx, id)
			return err
		}
	}
	log.Info().Str("module", "app.namespace").Str("nsp", n.name).Str("sid", string(id)).Msg("connected")
	return nil
}

// Disconnect drops every membership of id and forgets its endpoint.
func (n *Namespace) Disconnect(ctx context.Context, id domain.EndpointID) {
	if err := n.adapter.LeaveAll(ctx, id); err != nil && !errors.Is(err, core.ErrAdapterClosed) {
		log.Error().Err(err).Str("module", "app.namespace").Str("nsp", n.name).Str("sid", string(id)).Msg("leave all")
	}
	if n.registry.Unbind(id) {
		log.Info().Str("module", "app.namespace").Str("nsp", n.name).Str("sid", string(id)).Msg("disconnected")
	}
}

func (n *Namespace) Connected(id domain.EndpointID) bool {
	_, ok := n.registry.Endpoint(id)
	return ok
}

func (n *Namespace) Join(ctx context.Context, id domain.EndpointID, room domain.Room) error {
	return n.adapter.Join(ctx, id, room)
}

func (n *Namespace) Leave(ctx context.Context, id domain.EndpointID, room domain.Room) error {
	return n.adapter.Leave(ctx, id, room)
}

func (n *Namespace) Clients(ctx context.Context, rooms ...domain.Room) ([]domain.EndpointID, error) {
	return n.adapter.Clients(ctx, rooms...)
}

func (n *Namespace) RoomsOf(id domain.EndpointID) []domain.Room {
	return n.adapter.RoomsOf(id)
}

// Emit broadcasts p and applies the backpressure policy to endpoints that
// could not take it.
func (n *Namespace) Emit(ctx context.Context, p *domain.Packet, opts core.BroadcastOptions) (core.PublishResult, error) {
	res, err := n.adapter.Broadcast(ctx, p, opts)
	if err != nil {
		return res, err
	}
	if n.recorder != nil {
		n.recorder.ObserveBroadcast(n.name, res)
	}
	if n.policy == nil {
		return res, nil
	}
	for _, id := range res.Dropped {
		switch n.policy.OnBackPressure(n, id) {
		case KickMember:
			n.Kick(ctx, id)
		case MarkSlow:
			log.Warn().Str("module", "app.namespace").Str("nsp", n.name).Str("sid", string(id)).Msg("slow endpoint")
		case DropFrame, NoAction:
		}
	}
	return res, nil
}

// Kick disconnects id from the namespace and cancels its connection.
func (n *Namespace) Kick(ctx context.Context, id domain.EndpointID) {
	n.registry.Cancel(id)
	n.Disconnect(ctx, id)
	log.Warn().Str("module", "app.namespace").Str("nsp", n.name).Str("sid", string(id)).Msg("kicked")
}

func (n *Namespace) Close() error {
	if n.unobserve != nil {
		n.unobserve()
	}
	return n.adapter.Close()
}
