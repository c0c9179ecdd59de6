// Package ws serves endpoints over websocket and speaks the socket.io packet
// format to clients.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/app"
	"github.com/dkeye/roomcast/internal/codec"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	WriteWait    time.Duration
	SendBuffer   int
	RequestLimit int
	RequestEvery time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

type Controller struct {
	nsps     *app.Namespaces
	opts     Options
	limiter  *RateLimiter
	encoder  core.Encoder
	upgrader websocket.Upgrader
}

func NewController(nsps *app.Namespaces, opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		nsps:    nsps,
		opts:    opts,
		limiter: NewRateLimiter(opts.RequestLimit, opts.RequestEvery),
		encoder: codec.Encoder{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// session is the per-connection state owned by the read pump.
type session struct {
	id    domain.EndpointID
	token string
	conn  *Conn
	dec   codec.Decoder
	nsps  map[string]*app.Namespace

	ctx    context.Context
	cancel context.CancelFunc
}

// HandleWS upgrades the request and serves the connection until either side closes.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)
	pongWait := ctl.opts.PingPeriod * 10 / 9
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctl.Serve(ctx, ws, token)
}

// Serve runs the pumps for an upgraded connection. It returns immediately.
func (ctl *Controller) Serve(parent context.Context, conn WSConn, token string) {
	id := domain.NewEndpointID()
	ctx, cancel := context.WithCancel(parent)
	s := &session{
		id:     id,
		token:  token,
		conn:   NewConn(id, conn, ctl.opts.SendBuffer),
		nsps:   make(map[string]*app.Namespace),
		ctx:    ctx,
		cancel: cancel,
	}
	log.Info().Str("module", "ws").Str("sid", string(id)).Msg("new WS connection")

	go ctl.writePump(ctx, s)

	if err := ctl.connect(s, domain.DefaultNsp); err != nil {
		log.Error().Err(err).Str("module", "ws").Str("sid", string(id)).Msg("connect default namespace")
		cancel()
		s.conn.Close()
		return
	}
	go ctl.readPump(s)
}

func (ctl *Controller) connect(s *session, nsp string) error {
	if _, ok := s.nsps[nsp]; ok {
		return nil
	}
	ns, err := ctl.nsps.GetOrCreate(nsp)
	if err != nil {
		return err
	}
	var rooms []domain.Room
	if s.token != "" {
		rooms = append(rooms, ClientRoom(s.token))
	}
	if err := ns.Connect(s.ctx, s.id, s.conn, s.cancel, rooms...); err != nil {
		return err
	}
	s.nsps[nsp] = ns
	data, _ := json.Marshal(map[string]string{"sid": string(s.id)})
	ctl.send(s, &domain.Packet{Type: domain.PacketConnect, Nsp: nsp, Data: data})
	return nil
}

func (ctl *Controller) disconnect(s *session, nsp string) {
	ns, ok := s.nsps[nsp]
	if !ok {
		return
	}
	ns.Disconnect(context.Background(), s.id)
	delete(s.nsps, nsp)
}

// cleanup runs once the read pump exits.
func (ctl *Controller) cleanup(s *session) {
	for nsp := range s.nsps {
		ctl.disconnect(s, nsp)
	}
	ctl.limiter.Forget(s.id)
	s.cancel()
	s.conn.Close()
	log.Info().Str("module", "ws").Str("sid", string(s.id)).Msg("connection closed")
}

// ClientRoom is the room every connection of one client token joins.
func ClientRoom(token string) domain.Room {
	return domain.Room("client:" + token)
}

// send encodes p and queues it for this connection only.
func (ctl *Controller) send(s *session, p *domain.Packet) {
	frames, err := ctl.encoder.Encode(p)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("sid", string(s.id)).Msg("encode reply")
		return
	}
	if err := s.conn.Deliver(frames, core.DeliverOptions{PreEncoded: true}); err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("sid", string(s.id)).Msg("reply dropped")
	}
}
