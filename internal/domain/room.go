package domain

import (
	"errors"
	"fmt"
)

const MaxRoomLen = 128

var (
	ErrRoomEmpty   = errors.New("room name empty")
	ErrRoomTooLong = errors.New("room name too long")
)

// Room is a named group of endpoints. It exists only while it has members.
type Room string

// ParseRoom validates a client supplied room name.
func ParseRoom(name string) (Room, error) {
	if len(name) == 0 {
		return "", ErrRoomEmpty
	}
	if len(name) > MaxRoomLen {
		return "", ErrRoomTooLong
	}
	return Room(name), nil
}

// ParseRooms validates every name and fails on the first invalid one.
// No names yields an empty slice, which adapters read as "every endpoint".
func ParseRooms(names ...string) ([]Room, error) {
	out := make([]Room, 0, len(names))
	for _, n := range names {
		r, err := ParseRoom(n)
		if err != nil {
			return nil, fmt.Errorf("room %q: %w", n, err)
		}
		out = append(out, r)
	}
	return out, nil
}
