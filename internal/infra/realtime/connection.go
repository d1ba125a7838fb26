package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	domainuser "zedflip/internal/domain/user"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 10

	DefaultSendBuffer = 64
)

var (
	ErrConnectionClosed = errors.New("realtime: connection closed")
	ErrSendBufferFull   = errors.New("realtime: send buffer full")
)

// Connection is one websocket bound to a single user for its lifetime.
// Outbound frames go through a bounded buffer drained by WriteLoop; a frame
// that does not fit is dropped.
type Connection struct {
	id     string
	userID domainuser.ID

	ws     *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func NewConnection(userID domainuser.ID, ws *websocket.Conn, buffer int) *Connection {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Connection{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) UserID() domainuser.ID { return c.userID }

// Send enqueues payload without blocking.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops WriteLoop and closes the socket. Safe to call more than once.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(writeWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

// WriteLoop owns every write to the socket. It returns when the connection
// closes or a write fails.
func (c *Connection) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

// ReadLoop hands every text frame to handle until the peer goes away.
func (c *Connection) ReadLoop(handle func(data []byte)) error {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
				errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}

func (c *Connection) write(kind int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, payload)
}
