package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/domain"
)

func (ctl *Controller) writePump(ctx context.Context, s *session) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "ws").Str("sid", string(s.id)).Msg("writePump ctx done")
			return
		case b, ok := <-s.conn.send:
			if !ok {
				return
			}
			if err := s.conn.write(b, ctl.opts.WriteWait); err != nil {
				log.Error().Err(err).Str("module", "ws").Str("sid", string(s.id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := s.conn.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				return
			}
			if err := s.conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "ws").Str("sid", string(s.id)).Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(s *session) {
	defer ctl.cleanup(s)

	for {
		mt, data, err := s.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("module", "ws").Str("sid", string(s.id)).Msg("readPump read error")
			}
			return
		}
		switch mt {
		case websocket.TextMessage, websocket.BinaryMessage:
		default:
			continue
		}
		p, err := s.dec.Add(domain.Frame(data), mt == websocket.BinaryMessage)
		if err != nil {
			log.Warn().Err(err).Str("module", "ws").Str("sid", string(s.id)).Msg("bad packet")
			continue
		}
		if p == nil {
			continue
		}
		ctl.handlePacket(s, p)
	}
}

func (ctl *Controller) handlePacket(s *session, p *domain.Packet) {
	switch p.Type {
	case domain.PacketConnect:
		if err := ctl.connect(s, p.Nsp); err != nil {
			log.Warn().Err(err).Str("module", "ws").Str("sid", string(s.id)).Str("nsp", p.Nsp).Msg("connect refused")
			ctl.send(s, errorPacket(p.Nsp, err.Error()))
		}
		return
	case domain.PacketDisconnect:
		ctl.disconnect(s, p.Nsp)
		return
	case domain.PacketEvent, domain.PacketBinaryEvent:
	default:
		return
	}

	ns, ok := s.nsps[p.Nsp]
	if !ok {
		log.Warn().Str("module", "ws").Str("sid", string(s.id)).Str("nsp", p.Nsp).Msg("event for unconnected namespace")
		return
	}
	name, args, err := p.Event()
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("sid", string(s.id)).Msg("bad event")
		return
	}
	req := &request{ctl: ctl, s: s, ns: ns, packet: p, args: args}

	switch name {
	case "join":
		ctl.handleJoin(req)
	case "leave":
		ctl.handleLeave(req)
	case "clients":
		ctl.handleClients(req)
	case "rooms":
		ctl.handleRooms(req)
	case "publish":
		ctl.handlePublish(req)
	default:
		log.Debug().Str("module", "ws").Str("event", name).Msg("unknown event")
		req.fail("unknown_event")
	}
}
