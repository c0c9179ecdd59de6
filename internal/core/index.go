package core

import (
	"maps"
	"slices"

	"github.com/dkeye/roomcast/internal/domain"
)

type set[K comparable] map[K]struct{}

// Index is the bidirectional membership index: room -> endpoints and endpoint -> rooms.
// A room with no members never stays in the index.
// Index is not safe for concurrent use; owners guard it.
type Index struct {
	rooms map[domain.Room]set[domain.EndpointID]
	sids  map[domain.EndpointID]set[domain.Room]
}

func NewIndex() *Index {
	return &Index{
		rooms: make(map[domain.Room]set[domain.EndpointID]),
		sids:  make(map[domain.EndpointID]set[domain.Room]),
	}
}

// Add joins id to room, creating both entries lazily.
// created reports a new room, added reports a new membership.
func (x *Index) Add(id domain.EndpointID, room domain.Room) (created, added bool) {
	rooms, ok := x.sids[id]
	if !ok {
		rooms = make(set[domain.Room])
		x.sids[id] = rooms
	}
	members, ok := x.rooms[room]
	if !ok {
		members = make(set[domain.EndpointID])
		x.rooms[room] = members
		created = true
	}
	if _, ok := members[id]; ok {
		return created, false
	}
	rooms[room] = struct{}{}
	members[id] = struct{}{}
	return created, true
}

// Del removes id from room. An untracked pair leaves the index untouched.
// pruned reports that the room lost its last member and was dropped.
func (x *Index) Del(id domain.EndpointID, room domain.Room) (pruned bool, err error) {
	rooms, ok := x.sids[id]
	if !ok {
		return false, &NotFoundError{ID: id, Room: room}
	}
	members, ok := x.rooms[room]
	if !ok {
		return false, &NotFoundError{ID: id, Room: room}
	}
	if _, ok := members[id]; !ok {
		return false, &NotFoundError{ID: id, Room: room}
	}
	delete(rooms, room)
	delete(members, id)
	if len(members) == 0 {
		delete(x.rooms, room)
		pruned = true
	}
	return pruned, nil
}

// DelAll removes id from every room and forgets it.
// It returns the rooms id left and, separately, those that were pruned.
func (x *Index) DelAll(id domain.EndpointID) (left, pruned []domain.Room) {
	rooms, ok := x.sids[id]
	if !ok {
		return nil, nil
	}
	for room := range rooms {
		left = append(left, room)
		members, ok := x.rooms[room]
		if !ok {
			continue
		}
		delete(members, id)
		if len(members) == 0 {
			delete(x.rooms, room)
			pruned = append(pruned, room)
		}
	}
	delete(x.sids, id)
	slices.Sort(left)
	slices.Sort(pruned)
	return left, pruned
}

func (x *Index) Has(id domain.EndpointID, room domain.Room) bool {
	_, ok := x.rooms[room][id]
	return ok
}

// Tracked reports whether id has an entry, even one with no rooms left.
func (x *Index) Tracked(id domain.EndpointID) bool {
	_, ok := x.sids[id]
	return ok
}

func (x *Index) RoomsOf(id domain.EndpointID) []domain.Room {
	return sortedKeys(x.sids[id])
}

func (x *Index) MembersOf(room domain.Room) []domain.EndpointID {
	return sortedKeys(x.rooms[room])
}

// Rooms lists every non-empty room.
func (x *Index) Rooms() []domain.Room {
	return sortedKeys(x.rooms)
}

// Endpoints lists every tracked endpoint.
func (x *Index) Endpoints() []domain.EndpointID {
	return sortedKeys(x.sids)
}

// Len returns the number of rooms and tracked endpoints.
func (x *Index) Len() (rooms, endpoints int) {
	return len(x.rooms), len(x.sids)
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	if len(m) == 0 {
		return []K{}
	}
	return slices.Sorted(maps.Keys(m))
}
