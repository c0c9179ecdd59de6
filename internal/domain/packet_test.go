package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	p, err := NewEvent("chat", "hello", map[string]int{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, PacketEvent, p.Type)
	assert.JSONEq(t, `["chat","hello",{"n":1}]`, string(p.Data))

	name, args, err := p.Event()
	require.NoError(t, err)
	assert.Equal(t, "chat", name)
	require.Len(t, args, 2)
	assert.JSONEq(t, `"hello"`, string(args[0]))
}

func TestNewAck(t *testing.T) {
	p, err := NewAck(5)
	require.NoError(t, err)
	assert.Equal(t, PacketAck, p.Type)
	require.NotNil(t, p.ID)
	assert.Equal(t, 5, *p.ID)
	assert.JSONEq(t, `[]`, string(p.Data))

	_, _, err = p.Event()
	assert.ErrorIs(t, err, ErrNotEvent)
}

func TestPacket_EventErrors(t *testing.T) {
	_, _, err := (&Packet{Type: PacketEvent, Data: []byte(`[]`)}).Event()
	assert.ErrorIs(t, err, ErrNotEvent)

	_, _, err = (&Packet{Type: PacketEvent, Data: []byte(`[1]`)}).Event()
	assert.Error(t, err)
}

func TestParseRoom(t *testing.T) {
	r, err := ParseRoom("lobby")
	require.NoError(t, err)
	assert.Equal(t, Room("lobby"), r)

	_, err = ParseRoom("")
	assert.ErrorIs(t, err, ErrRoomEmpty)

	long := make([]byte, MaxRoomLen+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = ParseRoom(string(long))
	assert.ErrorIs(t, err, ErrRoomTooLong)

}

func TestParseRooms(t *testing.T) {
	rooms, err := ParseRooms("a", "b")
	require.NoError(t, err)
	assert.Equal(t, []Room{"a", "b"}, rooms)

	rooms, err = ParseRooms()
	require.NoError(t, err)
	assert.Empty(t, rooms)

	_, err = ParseRooms("a", "", "b")
	assert.ErrorIs(t, err, ErrRoomEmpty)

	_, err = ParseRooms(strings.Repeat("x", MaxRoomLen+1))
	assert.ErrorIs(t, err, ErrRoomTooLong)
}
