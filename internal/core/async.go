package core

import (
	"context"

	"github.com/dkeye/roomcast/internal/domain"
)

// Async gives any Adapter the completion-callback convention: the operation
// runs synchronously and done is delivered on a later turn of the Deferrer.
// A nil done is allowed everywhere.
type Async struct {
	adapter Adapter
	d       *Deferrer
}

func NewAsync(a Adapter, d *Deferrer) *Async {
	return &Async{adapter: a, d: d}
}

func (a *Async) Adapter() Adapter { return a.adapter }

func (a *Async) Join(ctx context.Context, id domain.EndpointID, room domain.Room, done func(error)) {
	err := a.adapter.Join(ctx, id, room)
	a.notify(done, err)
}

func (a *Async) Leave(ctx context.Context, id domain.EndpointID, room domain.Room, done func(error)) {
	err := a.adapter.Leave(ctx, id, room)
	a.notify(done, err)
}

func (a *Async) LeaveAll(ctx context.Context, id domain.EndpointID, done func(error)) {
	err := a.adapter.LeaveAll(ctx, id)
	a.notify(done, err)
}

func (a *Async) Clients(ctx context.Context, rooms []domain.Room, done func([]domain.EndpointID, error)) {
	ids, err := a.adapter.Clients(ctx, rooms...)
	if done == nil {
		return
	}
	a.run(func() { done(ids, err) })
}

func (a *Async) Broadcast(ctx context.Context, p *domain.Packet, opts BroadcastOptions, done func(PublishResult, error)) {
	res, err := a.adapter.Broadcast(ctx, p, opts)
	if done == nil {
		return
	}
	a.run(func() { done(res, err) })
}

func (a *Async) notify(done func(error), err error) {
	if done == nil {
		return
	}
	a.run(func() { done(err) })
}

// run falls back to an inline call once the deferrer is closed.
func (a *Async) run(fn func()) {
	if !a.d.Defer(fn) {
		fn()
	}
}

// Defer queues fn behind every completion already scheduled.
func (a *Async) Defer(fn func()) {
	a.run(fn)
}
