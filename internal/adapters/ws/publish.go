package ws

import (
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

type publishPayload struct {
	Rooms    []string        `json:"rooms"`
	Except   []string        `json:"except"`
	Volatile bool            `json:"volatile"`
	Local    bool            `json:"local"`
	Self     bool            `json:"self"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// handlePublish fans an event out to rooms of the sender's namespace.
// The sender is excluded unless it asks for its own copy.
func (ctl *Controller) handlePublish(r *request) {
	if !ctl.limiter.Allow(r.s.id) {
		r.fail("rate_limited")
		return
	}
	if len(r.args) == 0 {
		r.fail("bad_payload")
		return
	}
	var p publishPayload
	if err := json.Unmarshal(r.args[0], &p); err != nil || p.Event == "" {
		log.Warn().Str("module", "ws").Str("sid", string(r.s.id)).Msg("bad publish payload")
		r.fail("bad_payload")
		return
	}

	rooms, err := domain.ParseRooms(p.Rooms...)
	if err != nil {
		r.reply(err)
		return
	}

	var args []any
	if len(p.Data) > 0 {
		args = append(args, p.Data)
	}
	out, err := domain.NewEvent(p.Event, args...)
	if err != nil {
		r.fail("bad_payload")
		return
	}
	out.Attachments = r.packet.Attachments

	except := make([]domain.EndpointID, 0, len(p.Except)+1)
	for _, id := range p.Except {
		except = append(except, domain.EndpointID(id))
	}
	if !p.Self {
		except = append(except, r.s.id)
	}
	opts := core.BroadcastOptions{
		Rooms:  rooms,
		Except: except,
		Flags:  core.Flags{Volatile: p.Volatile, Local: p.Local},
	}

	res, err := r.ns.Emit(r.s.ctx, out, opts)
	r.ns.Async().Defer(func() {
		r.reply(err, res.Dispatched)
	})
}
