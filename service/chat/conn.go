package chat

import (
	"net"
	"sync"
	"time"

	"PPGateway/logger"
	"PPGateway/tools/security"

	"github.com/gorilla/websocket"
)

// ---- 常量参数（建议值） ----
const (
	defaultPingInterval = 25 * time.Second
	defaultPongWait     = 60 * time.Second
	defaultWriteWait    = 10 * time.Second
	defaultSendQueue    = 256
)

// PumpConf tunes the per-connection read and write loops.
type PumpConf struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
}

func (c *PumpConf) norm() {
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	// pong 等待必须长于 ping 间隔，否则连接会被误判超时
	if c.PongWait <= c.PingInterval {
		c.PongWait = 2 * c.PingInterval
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
}

// Conn is one authenticated physical connection (a connection handle).
// A user may hold several at once, one per device.
type Conn struct {
	ID        string
	Identity  security.Identity
	Remote    net.Addr
	CreatedAt time.Time

	ws *websocket.Conn

	mu     sync.Mutex
	send   chan []byte // 每连接独立发送队列，由单个写协程消费
	closed bool

	roomsMu sync.Mutex
	rooms   map[ChannelKey]struct{}
}

// NewConn wraps ws; ws may be nil in tests that only read the send queue.
func NewConn(id string, identity security.Identity, ws *websocket.Conn, sendQueue int) *Conn {
	if sendQueue <= 0 {
		sendQueue = defaultSendQueue
	}
	c := &Conn{
		ID:        id,
		Identity:  identity,
		CreatedAt: time.Now(),
		ws:        ws,
		send:      make(chan []byte, sendQueue),
		rooms:     make(map[ChannelKey]struct{}),
	}
	if ws != nil {
		c.Remote = ws.RemoteAddr()
	}
	return c
}

func (c *Conn) UserID() string { return c.Identity.UserID }

// Enqueue hands frame to the writer without blocking. It reports false when
// the connection is closed or its queue is full; the frame is then dropped.
func (c *Conn) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops accepting frames; the writer flushes a close frame and
// releases the socket. Safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Rooms lists the channels this connection is currently joined to.
func (c *Conn) Rooms() []ChannelKey {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	out := make([]ChannelKey, 0, len(c.rooms))
	for k := range c.rooms {
		out = append(out, k)
	}
	return out
}

func (c *Conn) writePump(conf PumpConf) {
	ticker := time.NewTicker(conf.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(conf.WriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Infof("[WS] write err conn=%s user=%s err=%v", c.ID, c.UserID(), err)
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(conf.WriteWait)); err != nil {
				logger.Infof("[WS] ping err conn=%s user=%s err=%v", c.ID, c.UserID(), err)
				return
			}
		}
	}
}

// readPump blocks until the peer goes away; frames are handed to onFrame
// one at a time, in arrival order.
func (c *Conn) readPump(conf PumpConf, onFrame func([]byte)) {
	if conf.MaxMessageBytes > 0 {
		c.ws.SetReadLimit(conf.MaxMessageBytes)
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(conf.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(conf.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Debugf("[WS] peer closed conn=%s err=%v", c.ID, err)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout conn=%s err=%v", c.ID, err)
			} else {
				logger.Debugf("[WS] read err conn=%s err=%v", c.ID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		onFrame(data)
	}
}
