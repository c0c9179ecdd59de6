package core

import "github.com/dkeye/roomcast/internal/domain"

// Observer receives adapter lifecycle events after the change is visible.
type Observer interface {
	OnRoomCreated(room domain.Room)
	OnRoomDeleted(room domain.Room)
	OnJoin(id domain.EndpointID, room domain.Room)
	OnLeave(id domain.EndpointID, room domain.Room)
}

// ObserverFuncs adapts optional funcs to Observer.
type ObserverFuncs struct {
	RoomCreated func(domain.Room)
	RoomDeleted func(domain.Room)
	Join        func(domain.EndpointID, domain.Room)
	Leave       func(domain.EndpointID, domain.Room)
}

func (f ObserverFuncs) OnRoomCreated(room domain.Room) {
	if f.RoomCreated != nil {
		f.RoomCreated(room)
	}
}

func (f ObserverFuncs) OnRoomDeleted(room domain.Room) {
	if f.RoomDeleted != nil {
		f.RoomDeleted(room)
	}
}

func (f ObserverFuncs) OnJoin(id domain.EndpointID, room domain.Room) {
	if f.Join != nil {
		f.Join(id, room)
	}
}

func (f ObserverFuncs) OnLeave(id domain.EndpointID, room domain.Room) {
	if f.Leave != nil {
		f.Leave(id, room)
	}
}
