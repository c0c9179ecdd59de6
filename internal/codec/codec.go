// Package codec implements the socket.io-parser text format:
//
//	<type>[<attachments>-][<nsp>,][<id>][<json data>]
//
// Packets with binary attachments are sent as one text frame followed by one
// binary frame per attachment. The data marks where attachment i belongs with
// {"_placeholder":true,"num":i}; every attachment needs at least one marker.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

const MaxAttachments = 64

var ErrInvalidPacket = errors.New("invalid packet")

var _ core.Encoder = Encoder{}

type Encoder struct{}

func (Encoder) Encode(p *domain.Packet) ([]domain.Frame, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidPacket)
	}
	typ := p.Type
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: type %d", ErrInvalidPacket, typ)
	}
	if len(p.Attachments) > MaxAttachments {
		return nil, fmt.Errorf("%w: %d attachments", ErrInvalidPacket, len(p.Attachments))
	}
	if len(p.Attachments) > 0 {
		switch typ {
		case domain.PacketEvent:
			typ = domain.PacketBinaryEvent
		case domain.PacketAck:
			typ = domain.PacketBinaryAck
		}
	}
	if p.Nsp != "" && p.Nsp != domain.DefaultNsp && (!strings.HasPrefix(p.Nsp, "/") || strings.Contains(p.Nsp, ",")) {
		return nil, fmt.Errorf("%w: namespace %q", ErrInvalidPacket, p.Nsp)
	}
	if len(p.Data) > 0 && !json.Valid(p.Data) {
		return nil, fmt.Errorf("%w: data is not json", ErrInvalidPacket)
	}
	if len(p.Attachments) > 0 {
		if err := checkPlaceholders(p.Data, len(p.Attachments)); err != nil {
			return nil, err
		}
	}

	var b bytes.Buffer
	b.WriteString(strconv.Itoa(int(typ)))
	if isBinary(typ) {
		b.WriteString(strconv.Itoa(len(p.Attachments)))
		b.WriteByte('-')
	}
	if p.Nsp != "" && p.Nsp != domain.DefaultNsp {
		b.WriteString(p.Nsp)
		b.WriteByte(',')
	}
	if p.ID != nil {
		b.WriteString(strconv.Itoa(*p.ID))
	}
	b.Write(p.Data)

	frames := make([]domain.Frame, 0, 1+len(p.Attachments))
	frames = append(frames, domain.Frame(b.Bytes()))
	for _, att := range p.Attachments {
		frames = append(frames, domain.Frame(att))
	}
	return frames, nil
}

// Decoder reassembles packets from incoming frames. Not safe for concurrent use;
// each connection owns one.
type Decoder struct {
	pending *domain.Packet
	want    int
}

// Add feeds one frame. It returns nil until a packet is complete.
func (d *Decoder) Add(frame domain.Frame, binary bool) (*domain.Packet, error) {
	if binary {
		if d.pending == nil {
			return nil, fmt.Errorf("%w: unexpected binary frame", ErrInvalidPacket)
		}
		d.pending.Attachments = append(d.pending.Attachments, bytes.Clone(frame))
		if len(d.pending.Attachments) < d.want {
			return nil, nil
		}
		p := d.pending
		d.Reset()
		return p, nil
	}

	if d.pending != nil {
		d.Reset()
		return nil, fmt.Errorf("%w: text frame while awaiting attachments", ErrInvalidPacket)
	}
	p, n, err := decodeString(string(frame))
	if err != nil {
		return nil, err
	}
	if n > 0 {
		if err := checkPlaceholders(p.Data, n); err != nil {
			return nil, err
		}
		d.pending = p
		d.want = n
		return nil, nil
	}
	return p, nil
}

// Reset drops a partially reconstructed packet.
func (d *Decoder) Reset() {
	d.pending = nil
	d.want = 0
}

func decodeString(s string) (*domain.Packet, int, error) {
	if len(s) == 0 {
		return nil, 0, fmt.Errorf("%w: empty frame", ErrInvalidPacket)
	}
	typ := domain.PacketType(s[0] - '0')
	if !typ.Valid() {
		return nil, 0, fmt.Errorf("%w: type %q", ErrInvalidPacket, s[0])
	}
	p := &domain.Packet{Type: typ, Nsp: domain.DefaultNsp}
	i := 1

	attachments := 0
	if isBinary(typ) {
		dash := strings.IndexByte(s[i:], '-')
		if dash <= 0 {
			return nil, 0, fmt.Errorf("%w: missing attachment count", ErrInvalidPacket)
		}
		n, err := strconv.Atoi(s[i : i+dash])
		if err != nil || n < 0 || n > MaxAttachments {
			return nil, 0, fmt.Errorf("%w: attachment count %q", ErrInvalidPacket, s[i:i+dash])
		}
		attachments = n
		i += dash + 1
	}

	if i < len(s) && s[i] == '/' {
		end := strings.IndexByte(s[i:], ',')
		if end < 0 {
			p.Nsp = s[i:]
			i = len(s)
		} else {
			p.Nsp = s[i : i+end]
			i += end + 1
		}
	}

	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > start {
		id, err := strconv.Atoi(s[start:i])
		if err != nil {
			return nil, 0, fmt.Errorf("%w: id %q", ErrInvalidPacket, s[start:i])
		}
		p.ID = &id
	}

	if i < len(s) {
		data := []byte(s[i:])
		if !json.Valid(data) {
			return nil, 0, fmt.Errorf("%w: data is not json", ErrInvalidPacket)
		}
		p.Data = data
	}
	return p, attachments, nil
}

func isBinary(t domain.PacketType) bool {
	return t == domain.PacketBinaryEvent || t == domain.PacketBinaryAck
}

// checkPlaceholders verifies that data marks each of the n attachments and
// references none beyond them.
func checkPlaceholders(data []byte, n int) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: attachments without data", ErrInvalidPacket)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	seen := make([]bool, n)
	if err := markPlaceholders(v, seen); err != nil {
		return err
	}
	for i, ok := range seen {
		if !ok {
			return fmt.Errorf("%w: attachment %d has no placeholder", ErrInvalidPacket, i)
		}
	}
	return nil
}

func markPlaceholders(v any, seen []bool) error {
	switch t := v.(type) {
	case map[string]any:
		if ph, _ := t["_placeholder"].(bool); ph {
			num, ok := t["num"].(float64)
			if !ok || num != math.Trunc(num) || num < 0 || int(num) >= len(seen) {
				return fmt.Errorf("%w: placeholder num %v", ErrInvalidPacket, t["num"])
			}
			seen[int(num)] = true
			return nil
		}
		for _, e := range t {
			if err := markPlaceholders(e, seen); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range t {
			if err := markPlaceholders(e, seen); err != nil {
				return err
			}
		}
	}
	return nil
}
