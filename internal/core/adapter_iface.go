package core

import (
	"context"

	"github.com/dkeye/roomcast/internal/domain"
)

type Flags struct {
	// Volatile permits dropping the message for endpoints that can't accept it immediately.
	Volatile bool
	// Local restricts the broadcast to this process.
	Local bool
}

type BroadcastOptions struct {
	// Rooms to target. Empty means every tracked endpoint.
	Rooms  []domain.Room
	Except []domain.EndpointID
	Flags  Flags
}

// ExceptSet returns Except as a lookup set.
func (o BroadcastOptions) ExceptSet() map[domain.EndpointID]struct{} {
	out := make(map[domain.EndpointID]struct{}, len(o.Except))
	for _, id := range o.Except {
		out[id] = struct{}{}
	}
	return out
}

// PublishResult reports delivery stats/backpressure to the namespace layer.
type PublishResult struct {
	Dispatched int
	Dropped    []domain.EndpointID
}

// Adapter is the membership and broadcast contract a namespace delegates to.
// Every operation has completed its effect by the time it returns.
type Adapter interface {
	Join(ctx context.Context, id domain.EndpointID, room domain.Room) error
	// Leave returns an error wrapping ErrNotFound for an untracked pair.
	Leave(ctx context.Context, id domain.EndpointID, room domain.Room) error
	LeaveAll(ctx context.Context, id domain.EndpointID) error

	Broadcast(ctx context.Context, p *domain.Packet, opts BroadcastOptions) (PublishResult, error)
	// Clients lists live endpoints in rooms, or every live endpoint when rooms is empty.
	Clients(ctx context.Context, rooms ...domain.Room) ([]domain.EndpointID, error)

	RoomsOf(id domain.EndpointID) []domain.Room
	MembersOf(room domain.Room) []domain.EndpointID

	// Observe registers o for lifecycle events until cancel is called.
	Observe(o Observer) (cancel func())
	Close() error
}
