package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

type fakeEndpoint struct {
	mu     sync.Mutex
	frames [][]domain.Frame
	opts   []core.DeliverOptions
	err    error
}

func (e *fakeEndpoint) Deliver(frames []domain.Frame, opts core.DeliverOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = append(e.frames, frames)
	e.opts = append(e.opts, opts)
	return e.err
}

func (e *fakeEndpoint) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.frames)
}

type fakeRegistry struct {
	mu  sync.RWMutex
	eps map[domain.EndpointID]*fakeEndpoint
}

func newFakeRegistry(ids ...domain.EndpointID) *fakeRegistry {
	r := &fakeRegistry{eps: make(map[domain.EndpointID]*fakeEndpoint)}
	for _, id := range ids {
		r.eps[id] = &fakeEndpoint{}
	}
	return r
}

func (r *fakeRegistry) Endpoint(id domain.EndpointID) (core.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.eps[id]
	if !ok {
		return nil, false
	}
	return ep, true
}

type mockEncoder struct {
	mock.Mock
}

func (m *mockEncoder) Encode(p *domain.Packet) ([]domain.Frame, error) {
	args := m.Called(p)
	frames, _ := args.Get(0).([]domain.Frame)
	return frames, args.Error(1)
}

func newEncoder() *mockEncoder {
	enc := &mockEncoder{}
	enc.On("Encode", mock.Anything).Return([]domain.Frame{domain.Frame("2[\"hi\"]")}, nil)
	return enc
}

func event(t *testing.T) *domain.Packet {
	t.Helper()
	p, err := domain.NewEvent("hi")
	require.NoError(t, err)
	return p
}

// a in r1, b in r1 and r2, c in r2.
func setupABC(t *testing.T) (*Adapter, *fakeRegistry, *mockEncoder) {
	t.Helper()
	reg := newFakeRegistry("a", "b", "c")
	enc := newEncoder()
	a := New("/", reg, enc)
	t.Cleanup(func() { _ = a.Close() })

	ctx := context.Background()
	require.NoError(t, a.Join(ctx, "a", "r1"))
	require.NoError(t, a.Join(ctx, "b", "r1"))
	require.NoError(t, a.Join(ctx, "b", "r2"))
	require.NoError(t, a.Join(ctx, "c", "r2"))
	return a, reg, enc
}

func received(reg *fakeRegistry) map[domain.EndpointID]int {
	out := make(map[domain.EndpointID]int)
	for id, ep := range reg.eps {
		if n := ep.count(); n > 0 {
			out[id] = n
		}
	}
	return out
}

func TestAdapter_Membership(t *testing.T) {
	ctx := context.Background()

	t.Run("join twice keeps one membership", func(t *testing.T) {
		a := New("/", newFakeRegistry(), newEncoder())
		defer a.Close()

		require.NoError(t, a.Join(ctx, "e", "r"))
		require.NoError(t, a.Join(ctx, "e", "r"))
		assert.Equal(t, []domain.EndpointID{"e"}, a.MembersOf("r"))
		assert.Equal(t, []domain.Room{"r"}, a.RoomsOf("e"))
	})

	t.Run("leave prunes room", func(t *testing.T) {
		a := New("/", newFakeRegistry(), newEncoder())
		defer a.Close()

		require.NoError(t, a.Join(ctx, "e", "r"))
		require.NoError(t, a.Leave(ctx, "e", "r"))
		assert.Empty(t, a.MembersOf("r"))
		assert.Empty(t, a.Rooms())
	})

	t.Run("leave of untracked pair reports not found and changes nothing", func(t *testing.T) {
		a := New("/", newFakeRegistry(), newEncoder())
		defer a.Close()

		require.NoError(t, a.Join(ctx, "e", "r"))
		err := a.Leave(ctx, "e", "other")
		assert.ErrorIs(t, err, core.ErrNotFound)
		err = a.Leave(ctx, "ghost", "r")
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.Equal(t, []domain.Room{"r"}, a.RoomsOf("e"))
	})

	t.Run("leave all", func(t *testing.T) {
		a := New("/", newFakeRegistry(), newEncoder())
		defer a.Close()

		require.NoError(t, a.Join(ctx, "e", "r1"))
		require.NoError(t, a.Join(ctx, "e", "r2"))
		require.NoError(t, a.LeaveAll(ctx, "e"))
		assert.Empty(t, a.RoomsOf("e"))
		assert.NotContains(t, a.MembersOf("r1"), domain.EndpointID("e"))
		assert.NotContains(t, a.MembersOf("r2"), domain.EndpointID("e"))
		require.NoError(t, a.LeaveAll(ctx, "e"))
	})

	t.Run("operations after close fail", func(t *testing.T) {
		a := New("/", newFakeRegistry(), newEncoder())
		require.NoError(t, a.Close())
		require.NoError(t, a.Close())

		assert.ErrorIs(t, a.Join(ctx, "e", "r"), core.ErrAdapterClosed)
		assert.ErrorIs(t, a.Leave(ctx, "e", "r"), core.ErrAdapterClosed)
		assert.ErrorIs(t, a.LeaveAll(ctx, "e"), core.ErrAdapterClosed)
		_, err := a.Broadcast(ctx, event(t), core.BroadcastOptions{})
		assert.ErrorIs(t, err, core.ErrAdapterClosed)
		_, err = a.Clients(ctx)
		assert.ErrorIs(t, err, core.ErrAdapterClosed)
	})
}

func TestAdapter_Broadcast(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		opts core.BroadcastOptions
		want map[domain.EndpointID]int
	}{
		{
			name: "single room",
			opts: core.BroadcastOptions{Rooms: []domain.Room{"r1"}},
			want: map[domain.EndpointID]int{"a": 1, "b": 1},
		},
		{
			name: "overlapping rooms deliver once",
			opts: core.BroadcastOptions{Rooms: []domain.Room{"r1", "r2"}},
			want: map[domain.EndpointID]int{"a": 1, "b": 1, "c": 1},
		},
		{
			name: "except wins over room match",
			opts: core.BroadcastOptions{Rooms: []domain.Room{"r1"}, Except: []domain.EndpointID{"a"}},
			want: map[domain.EndpointID]int{"b": 1},
		},
		{
			name: "no rooms targets everyone",
			opts: core.BroadcastOptions{},
			want: map[domain.EndpointID]int{"a": 1, "b": 1, "c": 1},
		},
		{
			name: "no rooms with except",
			opts: core.BroadcastOptions{Except: []domain.EndpointID{"b"}},
			want: map[domain.EndpointID]int{"a": 1, "c": 1},
		},
		{
			name: "unknown room reaches nobody",
			opts: core.BroadcastOptions{Rooms: []domain.Room{"void"}},
			want: map[domain.EndpointID]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, reg, enc := setupABC(t)

			res, err := a.Broadcast(ctx, event(t), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, received(reg))
			assert.Equal(t, len(tt.want), res.Dispatched)
			assert.Empty(t, res.Dropped)
			enc.AssertNumberOfCalls(t, "Encode", 1)
		})
	}

	t.Run("every recipient shares the encoded frames", func(t *testing.T) {
		a, reg, _ := setupABC(t)

		_, err := a.Broadcast(ctx, event(t), core.BroadcastOptions{})
		require.NoError(t, err)

		first := reg.eps["a"].frames[0]
		for _, id := range []domain.EndpointID{"b", "c"} {
			got := reg.eps[id].frames[0]
			require.Len(t, got, len(first))
			assert.Same(t, &first[0][0], &got[0][0])
		}
		assert.Equal(t, core.DeliverOptions{PreEncoded: true}, reg.eps["a"].opts[0])
	})

	t.Run("volatile flag reaches the endpoint", func(t *testing.T) {
		a, reg, _ := setupABC(t)

		_, err := a.Broadcast(ctx, event(t), core.BroadcastOptions{
			Rooms: []domain.Room{"r2"},
			Flags: core.Flags{Volatile: true},
		})
		require.NoError(t, err)
		assert.Equal(t, core.DeliverOptions{PreEncoded: true, Volatile: true}, reg.eps["c"].opts[0])
	})

	t.Run("packet is stamped with the namespace", func(t *testing.T) {
		reg := newFakeRegistry("a")
		enc := &mockEncoder{}
		enc.On("Encode", mock.MatchedBy(func(p *domain.Packet) bool { return p.Nsp == "/chat" })).
			Return([]domain.Frame{domain.Frame("2/chat,[\"hi\"]")}, nil).Once()
		a := New("/chat", reg, enc)
		defer a.Close()
		require.NoError(t, a.Join(ctx, "a", "r"))

		p := event(t)
		_, err := a.Broadcast(ctx, p, core.BroadcastOptions{})
		require.NoError(t, err)
		enc.AssertExpectations(t)
		assert.Empty(t, p.Nsp, "caller's packet must stay untouched")
	})

	t.Run("stale ids are skipped", func(t *testing.T) {
		reg := newFakeRegistry("live")
		a := New("/", reg, newEncoder())
		defer a.Close()
		require.NoError(t, a.Join(ctx, "live", "r"))
		require.NoError(t, a.Join(ctx, "gone", "r"))

		res, err := a.Broadcast(ctx, event(t), core.BroadcastOptions{Rooms: []domain.Room{"r"}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Dispatched)
		assert.Equal(t, 1, reg.eps["live"].count())

		ids, err := a.Clients(ctx, "r")
		require.NoError(t, err)
		assert.Equal(t, []domain.EndpointID{"live"}, ids)
	})

	t.Run("only stale recipients is not a failure", func(t *testing.T) {
		a := New("/", newFakeRegistry(), newEncoder())
		defer a.Close()
		require.NoError(t, a.Join(ctx, "gone", "r"))

		res, err := a.Broadcast(ctx, event(t), core.BroadcastOptions{Rooms: []domain.Room{"r"}})
		require.NoError(t, err)
		assert.Zero(t, res.Dispatched)
	})

	t.Run("failed deliveries are reported as dropped", func(t *testing.T) {
		a, reg, _ := setupABC(t)
		reg.eps["b"].err = errors.New("backpressure")

		res, err := a.Broadcast(ctx, event(t), core.BroadcastOptions{Rooms: []domain.Room{"r1", "r2"}})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Dispatched)
		assert.Equal(t, []domain.EndpointID{"b"}, res.Dropped)
	})

	t.Run("encoder failure sends nothing", func(t *testing.T) {
		reg := newFakeRegistry("a")
		enc := &mockEncoder{}
		enc.On("Encode", mock.Anything).Return(nil, errors.New("bad packet"))
		a := New("/", reg, enc)
		defer a.Close()
		require.NoError(t, a.Join(ctx, "a", "r"))

		_, err := a.Broadcast(ctx, event(t), core.BroadcastOptions{})
		require.Error(t, err)
		assert.Zero(t, reg.eps["a"].count())
	})

	t.Run("nil packet", func(t *testing.T) {
		a, _, enc := setupABC(t)
		_, err := a.Broadcast(ctx, nil, core.BroadcastOptions{})
		assert.ErrorIs(t, err, ErrNilPacket)
		enc.AssertNotCalled(t, "Encode", mock.Anything)
	})

	t.Run("endpoint without rooms is still addressed by default", func(t *testing.T) {
		reg := newFakeRegistry("e")
		a := New("/", reg, newEncoder())
		defer a.Close()
		require.NoError(t, a.Join(ctx, "e", "r"))
		require.NoError(t, a.Leave(ctx, "e", "r"))

		res, err := a.Broadcast(ctx, event(t), core.BroadcastOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Dispatched)
	})
}

func TestAdapter_Clients(t *testing.T) {
	ctx := context.Background()

	t.Run("all live endpoints", func(t *testing.T) {
		a, _, _ := setupABC(t)
		ids, err := a.Clients(ctx)
		require.NoError(t, err)
		assert.Equal(t, []domain.EndpointID{"a", "b", "c"}, ids)
	})

	t.Run("union of rooms in first-seen order", func(t *testing.T) {
		a, _, _ := setupABC(t)
		ids, err := a.Clients(ctx, "r2", "r1")
		require.NoError(t, err)
		assert.Equal(t, []domain.EndpointID{"b", "c", "a"}, ids)
	})

	t.Run("stale ids are left out when listing all", func(t *testing.T) {
		a, _, _ := setupABC(t)
		require.NoError(t, a.Join(ctx, "ghost", "r3"))

		ids, err := a.Clients(ctx)
		require.NoError(t, err)
		assert.Equal(t, []domain.EndpointID{"a", "b", "c"}, ids)
		assert.Equal(t, []domain.EndpointID{"ghost"}, a.MembersOf("r3"), "index still tracks the id")
	})

	t.Run("unknown rooms", func(t *testing.T) {
		a, _, _ := setupABC(t)
		ids, err := a.Clients(ctx, "void")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestAdapter_Observe(t *testing.T) {
	ctx := context.Background()
	d := core.NewDeferrer()
	defer d.Close()

	a := New("/", newFakeRegistry(), newEncoder(), WithDeferrer(d))
	defer a.Close()

	var events []string
	cancel := a.Observe(core.ObserverFuncs{
		RoomCreated: func(r domain.Room) { events = append(events, "created:"+string(r)) },
		RoomDeleted: func(r domain.Room) { events = append(events, "deleted:"+string(r)) },
		Join:        func(id domain.EndpointID, r domain.Room) { events = append(events, fmt.Sprintf("join:%s:%s", id, r)) },
		Leave:       func(id domain.EndpointID, r domain.Room) { events = append(events, fmt.Sprintf("leave:%s:%s", id, r)) },
	})

	require.NoError(t, a.Join(ctx, "e", "r"))
	require.NoError(t, a.Join(ctx, "e", "r"))
	require.NoError(t, a.Join(ctx, "f", "r"))
	require.NoError(t, a.Leave(ctx, "e", "r"))
	require.NoError(t, a.LeaveAll(ctx, "f"))
	d.Flush()

	assert.Equal(t, []string{
		"created:r",
		"join:e:r",
		"join:f:r",
		"leave:e:r",
		"leave:f:r",
		"deleted:r",
	}, events)

	cancel()
	require.NoError(t, a.Join(ctx, "g", "x"))
	d.Flush()
	assert.Len(t, events, 6)
}

func TestAdapter_ConcurrentUse(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	a := New("/", reg, newEncoder())
	defer a.Close()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := domain.EndpointID(fmt.Sprintf("e%d", i))
			room := domain.Room(fmt.Sprintf("r%d", i%4))
			for range 100 {
				_ = a.Join(ctx, id, room)
				_, _ = a.Broadcast(ctx, &domain.Packet{Type: domain.PacketEvent}, core.BroadcastOptions{Rooms: []domain.Room{room}})
				_ = a.Leave(ctx, id, room)
			}
			_ = a.LeaveAll(ctx, id)
		}()
	}
	wg.Wait()
	assert.Empty(t, a.Rooms())
}
