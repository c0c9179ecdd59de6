package ws

import (
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/domain"
)

func (ctl *Controller) handleJoin(r *request) {
	if !ctl.limiter.Allow(r.s.id) {
		r.fail("rate_limited")
		return
	}
	name, _ := r.stringArg(0)
	room, err := domain.ParseRoom(name)
	if err != nil {
		r.reply(err)
		return
	}
	log.Info().Str("module", "ws").Str("sid", string(r.s.id)).Str("nsp", r.ns.Name()).Str("room", string(room)).Msg("join")
	r.ns.Async().Join(r.s.ctx, r.s.id, room, func(err error) { r.reply(err) })
}

// handleLeave leaves one room; the connection stays open.
func (ctl *Controller) handleLeave(r *request) {
	name, _ := r.stringArg(0)
	room, err := domain.ParseRoom(name)
	if err != nil {
		r.reply(err)
		return
	}
	log.Info().Str("module", "ws").Str("sid", string(r.s.id)).Str("nsp", r.ns.Name()).Str("room", string(room)).Msg("leave")
	r.ns.Async().Leave(r.s.ctx, r.s.id, room, func(err error) { r.reply(err) })
}

func (ctl *Controller) handleClients(r *request) {
	var names []string
	if len(r.args) > 0 {
		if err := json.Unmarshal(r.args[0], &names); err != nil {
			r.fail("bad_payload")
			return
		}
	}
	rooms, err := domain.ParseRooms(names...)
	if err != nil {
		r.reply(err)
		return
	}
	r.ns.Async().Clients(r.s.ctx, rooms, func(ids []domain.EndpointID, err error) {
		r.reply(err, ids)
	})
}

func (ctl *Controller) handleRooms(r *request) {
	r.ns.Async().Defer(func() {
		r.reply(nil, r.ns.RoomsOf(r.s.id))
	})
}
