package domain

import (
	"errors"

	"github.com/goccy/go-json"
)

type PacketType int

const (
	PacketConnect PacketType = iota
	PacketDisconnect
	PacketEvent
	PacketAck
	PacketError
	PacketBinaryEvent
	PacketBinaryAck
)

// DefaultNsp is the root namespace name.
const DefaultNsp = "/"

var ErrNotEvent = errors.New("packet is not an event")

func (t PacketType) Valid() bool {
	return t >= PacketConnect && t <= PacketBinaryAck
}

// Packet is the logical message handed to an encoder.
// Data holds the raw JSON payload; for events it is an array whose first element is the event name.
type Packet struct {
	Type        PacketType      `json:"type"`
	Nsp         string          `json:"nsp"`
	ID          *int            `json:"id,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Attachments [][]byte        `json:"attachments,omitempty"`
}

// NewEvent builds an event packet carrying [event, args...].
func NewEvent(event string, args ...any) (*Packet, error) {
	data, err := json.Marshal(append([]any{event}, args...))
	if err != nil {
		return nil, err
	}
	return &Packet{Type: PacketEvent, Data: data}, nil
}

// NewAck builds an acknowledgement for the request id.
func NewAck(id int, args ...any) (*Packet, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return &Packet{Type: PacketAck, ID: &id, Data: data}, nil
}

// Event splits an event packet into its name and raw arguments.
func (p *Packet) Event() (string, []json.RawMessage, error) {
	if p.Type != PacketEvent && p.Type != PacketBinaryEvent {
		return "", nil, ErrNotEvent
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(p.Data, &raw); err != nil {
		return "", nil, err
	}
	if len(raw) == 0 {
		return "", nil, ErrNotEvent
	}
	var name string
	if err := json.Unmarshal(raw[0], &name); err != nil {
		return "", nil, err
	}
	return name, raw[1:], nil
}

// Clone returns a shallow copy so the adapter can stamp the namespace without
// touching the caller's value.
func (p *Packet) Clone() *Packet {
	cp := *p
	return &cp
}
