package ws

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/app"
	"github.com/dkeye/roomcast/internal/codec"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

// request is one client event. Acks follow the (error, result) convention:
// the first argument is null on success or an error code.
type request struct {
	ctl    *Controller
	s      *session
	ns     *app.Namespace
	packet *domain.Packet
	args   []json.RawMessage
}

func (r *request) ack(args ...any) {
	if r.packet.ID == nil {
		return
	}
	p, err := domain.NewAck(*r.packet.ID, args...)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("sid", string(r.s.id)).Msg("build ack")
		return
	}
	p.Nsp = r.ns.Name()
	r.ctl.send(r.s, p)
}

func (r *request) fail(code string) {
	r.ack(code)
}

// reply acks err, mapped to a code, or nil followed by result.
func (r *request) reply(err error, result ...any) {
	if err != nil {
		r.fail(errorCode(err))
		return
	}
	r.ack(append([]any{nil}, result...)...)
}

func (r *request) stringArg(i int) (string, bool) {
	if i >= len(r.args) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(r.args[i], &s); err != nil {
		return "", false
	}
	return s, true
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrAdapterClosed):
		return "closed"
	case errors.Is(err, domain.ErrRoomEmpty), errors.Is(err, domain.ErrRoomTooLong):
		return "bad_room"
	case errors.Is(err, codec.ErrInvalidPacket):
		return "bad_payload"
	default:
		return "internal"
	}
}

func errorPacket(nsp, msg string) *domain.Packet {
	data, _ := json.Marshal(map[string]string{"message": msg})
	return &domain.Packet{Type: domain.PacketError, Nsp: nsp, Data: data}
}
