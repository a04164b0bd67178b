package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// testClient is a socket client that collects frames in the background
type testClient struct {
	Username string
	Lobby    string

	conn   *websocket.Conn
	frames chan map[string]interface{}
	closed chan struct{}

	mu       sync.Mutex
	closeErr error
}

func dialClient(ctx context.Context, serverURL, lobby, username, token string) (*testClient, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws/" + lobby

	query := u.Query()
	query.Set("token", token)
	query.Set("username", username)
	u.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &testClient{
		Username: username,
		Lobby:    lobby,
		conn:     conn,
		frames:   make(chan map[string]interface{}, 256),
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *testClient) readLoop() {
	defer close(c.closed)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.closeErr = err
			c.mu.Unlock()
			return
		}
		var frame map[string]interface{}
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		c.frames <- frame
	}
}

func (c *testClient) Send(frame string) error {
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Next returns the next frame or an error after timeout
func (c *testClient) Next(timeout time.Duration) (map[string]interface{}, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case <-c.closed:
		// drain anything read before the close
		select {
		case frame := <-c.frames:
			return frame, nil
		default:
		}
		return nil, fmt.Errorf("connection closed: %w", c.CloseError())
	case <-time.After(timeout):
		return nil, fmt.Errorf("timed out waiting for frame")
	}
}

// NextOfType skips frames until one of the given type arrives
func (c *testClient) NextOfType(kind string, timeout time.Duration) (map[string]interface{}, error) {
	deadline := time.Now().Add(timeout)
	for {
		frame, err := c.Next(time.Until(deadline))
		if err != nil {
			return nil, err
		}
		if frame["type"] == kind {
			return frame, nil
		}
	}
}

// WaitClosed blocks until the server closes the socket
func (c *testClient) WaitClosed(timeout time.Duration) error {
	select {
	case <-c.closed:
		return c.CloseError()
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for close")
	}
}

func (c *testClient) CloseError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *testClient) Close() error {
	return c.conn.Close()
}
