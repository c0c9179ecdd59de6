package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

var _ core.Endpoint = (*Conn)(nil)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type outbound struct {
	frames     []domain.Frame
	preEncoded bool
}

// Conn is a websocket transport endpoint. Deliver never blocks: a full send
// queue drops volatile batches and reports ErrBackpressure for reliable ones.
type Conn struct {
	id   domain.EndpointID
	conn WSConn
	send chan outbound

	mu     sync.RWMutex
	closed bool
}

func NewConn(id domain.EndpointID, conn WSConn, buffer int) *Conn {
	return &Conn{
		id:   id,
		conn: conn,
		send: make(chan outbound, max(buffer, 1)),
	}
}

func (c *Conn) ID() domain.EndpointID { return c.id }

func (c *Conn) Deliver(frames []domain.Frame, opts core.DeliverOptions) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		if opts.Volatile {
			return nil
		}
		return ErrClosed
	}
	select {
	case c.send <- outbound{frames: frames, preEncoded: opts.PreEncoded}:
		return nil
	default:
		if opts.Volatile {
			return nil
		}
		return ErrBackpressure
	}
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// write sends one batch. Encoded batches start with a text frame followed by
// binary attachments; raw batches are all binary.
func (c *Conn) write(b outbound, wait time.Duration) error {
	for i, f := range b.frames {
		mt := websocket.BinaryMessage
		if b.preEncoded && i == 0 {
			mt = websocket.TextMessage
		}
		if err := c.conn.SetWriteDeadline(time.Now().Add(wait)); err != nil {
			return err
		}
		if err := c.conn.WriteMessage(mt, f); err != nil {
			return err
		}
	}
	return nil
}
