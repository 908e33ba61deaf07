package hub

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn is a single client connection the hub can deliver to. Implemented
// by WSConn in production and by in-memory fakes in tests.
type Conn interface {
	// ID uniquely identifies this connection.
	ID() string

	// Send writes one text message to the client.
	Send(data []byte) error

	// Ping sends a keepalive probe.
	Ping() error

	// LastSeen reports the most recent client activity.
	LastSeen() time.Time

	// Close tears down the underlying transport.
	Close() error
}

// WSConn wraps a raw WebSocket connection. All writes are serialized
// through a mutex since gobwas connections are not write-safe.
type WSConn struct {
	id       string
	conn     net.Conn
	mu       sync.Mutex
	lastSeen atomic.Value // time.Time
}

// NewWSConn wraps an upgraded WebSocket connection.
func NewWSConn(id string, conn net.Conn) *WSConn {
	c := &WSConn{id: id, conn: conn}
	c.lastSeen.Store(time.Now().UTC())
	return c
}

func (c *WSConn) ID() string { return c.id }

func (c *WSConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsutil.WriteServerText(c.conn, data)
}

func (c *WSConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsutil.WriteServerMessage(c.conn, ws.OpPing, nil)
}

// Touch updates the last activity timestamp. The read loop calls this
// on every inbound frame, including pongs.
func (c *WSConn) Touch() {
	c.lastSeen.Store(time.Now().UTC())
}

func (c *WSConn) LastSeen() time.Time {
	return c.lastSeen.Load().(time.Time)
}

func (c *WSConn) Close() error {
	return c.conn.Close()
}
