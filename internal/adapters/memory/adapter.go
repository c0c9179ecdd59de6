// Package memory is the single-process adapter: membership lives in a core.Index
// and broadcasts fan out to endpoints resolved through the namespace registry.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

var ErrNilPacket = errors.New("nil packet")

var _ core.Adapter = (*Adapter)(nil)

type Option func(*Adapter)

// WithDeferrer shares d for observer notifications. The adapter won't close it.
func WithDeferrer(d *core.Deferrer) Option {
	return func(a *Adapter) {
		a.d = d
		a.ownsD = false
	}
}

// Adapter is a threadsafe in-memory adapter scoped to one namespace.
// It stores endpoint ids only and never owns transport resources.
type Adapter struct {
	nsp      string
	registry core.EndpointRegistry
	encoder  core.Encoder

	mu     sync.RWMutex
	index  *core.Index
	closed bool

	// bmu serializes broadcasts so every recipient sees one global order.
	bmu sync.Mutex

	omu       sync.RWMutex
	observers map[int]core.Observer
	nextObs   int

	d     *core.Deferrer
	ownsD bool
}

func New(nsp string, registry core.EndpointRegistry, encoder core.Encoder, opts ...Option) *Adapter {
	a := &Adapter{
		nsp:       nsp,
		registry:  registry,
		encoder:   encoder,
		index:     core.NewIndex(),
		observers: make(map[int]core.Observer),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.d == nil {
		a.d = core.NewDeferrer()
		a.ownsD = true
	}
	return a
}

func (a *Adapter) Nsp() string { return a.nsp }

func (a *Adapter) Join(_ context.Context, id domain.EndpointID, room domain.Room) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return core.ErrAdapterClosed
	}
	created, added := a.index.Add(id, room)
	if created {
		a.emit(func(o core.Observer) { o.OnRoomCreated(room) })
	}
	if added {
		a.emit(func(o core.Observer) { o.OnJoin(id, room) })
		log.Debug().Str("module", "adapters.memory").Str("nsp", a.nsp).Str("sid", string(id)).Str("room", string(room)).Msg("joined")
	}
	return nil
}

func (a *Adapter) Leave(_ context.Context, id domain.EndpointID, room domain.Room) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return core.ErrAdapterClosed
	}
	pruned, err := a.index.Del(id, room)
	if err != nil {
		return err
	}
	a.emit(func(o core.Observer) { o.OnLeave(id, room) })
	if pruned {
		a.emit(func(o core.Observer) { o.OnRoomDeleted(room) })
	}
	log.Debug().Str("module", "adapters.memory").Str("nsp", a.nsp).Str("sid", string(id)).Str("room", string(room)).Bool("pruned", pruned).Msg("left")
	return nil
}

func (a *Adapter) LeaveAll(_ context.Context, id domain.EndpointID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return core.ErrAdapterClosed
	}
	left, pruned := a.index.DelAll(id)
	for _, room := range left {
		a.emit(func(o core.Observer) { o.OnLeave(id, room) })
	}
	for _, room := range pruned {
		a.emit(func(o core.Observer) { o.OnRoomDeleted(room) })
	}
	log.Debug().Str("module", "adapters.memory").Str("nsp", a.nsp).Str("sid", string(id)).Int("rooms", len(left)).Msg("left all")
	return nil
}

// Broadcast encodes p once, stamped with the namespace, and hands the same frames
// to every live recipient. Ids without a live endpoint are skipped.
func (a *Adapter) Broadcast(_ context.Context, p *domain.Packet, opts core.BroadcastOptions) (core.PublishResult, error) {
	var res core.PublishResult
	if p == nil {
		return res, ErrNilPacket
	}

	a.bmu.Lock()
	defer a.bmu.Unlock()

	ids, err := a.recipients(opts)
	if err != nil {
		return res, err
	}

	pkt := p.Clone()
	pkt.Nsp = a.nsp
	frames, err := a.encoder.Encode(pkt)
	if err != nil {
		return res, fmt.Errorf("encode packet: %w", err)
	}

	dopts := core.DeliverOptions{PreEncoded: true, Volatile: opts.Flags.Volatile}
	for _, id := range ids {
		ep, ok := a.registry.Endpoint(id)
		if !ok {
			continue
		}
		res.Dispatched++
		if err := ep.Deliver(frames, dopts); err != nil {
			res.Dropped = append(res.Dropped, id)
			log.Warn().Err(err).Str("module", "adapters.memory").Str("nsp", a.nsp).Str("sid", string(id)).Msg("delivery failed")
		}
	}
	log.Debug().Str("module", "adapters.memory").Str("nsp", a.nsp).Int("rooms", len(opts.Rooms)).Int("sent_to", res.Dispatched).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res, nil
}

func (a *Adapter) Clients(_ context.Context, rooms ...domain.Room) ([]domain.EndpointID, error) {
	ids, err := a.recipients(core.BroadcastOptions{Rooms: rooms})
	if err != nil {
		return nil, err
	}
	out := make([]domain.EndpointID, 0, len(ids))
	for _, id := range ids {
		if _, ok := a.registry.Endpoint(id); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (a *Adapter) RoomsOf(id domain.EndpointID) []domain.Room {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index.RoomsOf(id)
}

func (a *Adapter) MembersOf(room domain.Room) []domain.EndpointID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index.MembersOf(room)
}

// Rooms lists every non-empty room of the namespace.
func (a *Adapter) Rooms() []domain.Room {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index.Rooms()
}

func (a *Adapter) Observe(o core.Observer) func() {
	a.omu.Lock()
	defer a.omu.Unlock()
	key := a.nextObs
	a.nextObs++
	a.observers[key] = o

	var once sync.Once
	return func() {
		once.Do(func() {
			a.omu.Lock()
			delete(a.observers, key)
			a.omu.Unlock()
		})
	}
}

// Close stops the adapter. Pending observer notifications are still delivered.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	if a.ownsD {
		a.d.Close()
	}
	log.Info().Str("module", "adapters.memory").Str("nsp", a.nsp).Msg("adapter closed")
	return nil
}

// recipients resolves target ids in a stable order: first-seen across rooms,
// or sorted when addressing every tracked endpoint.
func (a *Adapter) recipients(opts core.BroadcastOptions) ([]domain.EndpointID, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, core.ErrAdapterClosed
	}

	except := opts.ExceptSet()
	if len(opts.Rooms) == 0 {
		all := a.index.Endpoints()
		out := all[:0]
		for _, id := range all {
			if _, skip := except[id]; !skip {
				out = append(out, id)
			}
		}
		return out, nil
	}

	seen := make(map[domain.EndpointID]struct{})
	out := make([]domain.EndpointID, 0)
	for _, room := range opts.Rooms {
		for _, id := range a.index.MembersOf(room) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if _, skip := except[id]; skip {
				continue
			}
			out = append(out, id)
		}
	}
	return out, nil
}

// emit queues fn for every observer. Callers hold a.mu so events keep mutation order.
func (a *Adapter) emit(fn func(core.Observer)) {
	a.omu.RLock()
	n := len(a.observers)
	a.omu.RUnlock()
	if n == 0 {
		return
	}
	a.d.Defer(func() {
		a.omu.RLock()
		obs := make([]core.Observer, 0, len(a.observers))
		for _, o := range a.observers {
			obs = append(obs, o)
		}
		a.omu.RUnlock()
		for _, o := range obs {
			fn(o)
		}
	})
}
