package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection implements lobby.Peer
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized, so every data
// frame goes through writeCh to a single writer goroutine. Control frames
// (ping, close) use WriteControl, which gorilla allows concurrently.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan [][]byte // one entry per Send call, so a history replay is a single slot
	writeTimeout time.Duration
	username     string
	lobbyName    string
	sessionID    string
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	mu           sync.RWMutex
}

// NewConnection wraps conn and starts its writer
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan [][]byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	// writeCh is never closed; Send may race with shutdown and must not panic
	defer c.Close()

	for {
		select {
		case batch := <-c.writeCh:
			for _, data := range batch {
				if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues frames for delivery in order without blocking.
// A peer that lets its queue fill up is disconnected.
func (c *Connection) Send(frames ...[]byte) error {
	if len(frames) == 0 {
		return nil
	}

	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- frames:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		_ = c.Close()
		return ErrSendBufferFull
	}
}

// Reject sends a close frame with code and reason, then closes the socket
func (c *Connection) Reject(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	if closeErr := c.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (c *Connection) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close is idempotent
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection shuts down
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// SetCredentials records who the connection claims to be. Set once, before
// the handshake checks run.
func (c *Connection) SetCredentials(username, lobbyName, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.lobbyName = lobbyName
	c.sessionID = sessionID
}

func (c *Connection) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Connection) LobbyName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lobbyName
}

func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}
