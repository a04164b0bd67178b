package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"whiteboard/internal/config"
	"whiteboard/internal/lobby"
	"whiteboard/internal/token"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }
func (plainHasher) Verify(hash, password string) bool    { return hash == "plain:"+password }

// testEnv is a full socket stack behind an httptest server
type testEnv struct {
	lobbies  *lobby.Registry
	tokens   *token.Service
	registry *Registry
	handler  *Handler
	server   *httptest.Server
}

func testWebSocketConfig() *config.WebSocketConfig {
	cfg := config.DefaultConfig().WebSocket
	cfg.WriteTimeout = 2 * time.Second
	return cfg
}

func newTestEnv(t *testing.T, cfg *config.WebSocketConfig) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = testWebSocketConfig()
	}

	lobbies := lobby.NewRegistry(plainHasher{}, lobby.Options{}, nil)
	tokens := token.NewService(lobbies)
	registry := NewRegistry()
	handler := NewHandler(lobbies, tokens, registry, cfg)

	router := mux.NewRouter()
	router.HandleFunc("/ws/{lobby_name}", handler.HandleWebSocket)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{
		lobbies:  lobbies,
		tokens:   tokens,
		registry: registry,
		handler:  handler,
		server:   server,
	}
}

func (e *testEnv) create(t *testing.T, name, username, password string, maxUsers int) {
	t.Helper()
	if _, err := e.lobbies.Create(name, username, password, maxUsers); err != nil {
		t.Fatalf("Create(%s) failed: %v", name, err)
	}
}

func (e *testEnv) issue(t *testing.T, name, username, password string) string {
	t.Helper()
	tok, err := e.tokens.Issue(context.Background(), name, username, password)
	if err != nil {
		t.Fatalf("Issue(%s, %s) failed: %v", name, username, err)
	}
	return tok
}

func (e *testEnv) dial(t *testing.T, name, username, tok string) *websocket.Conn {
	t.Helper()
	params := url.Values{}
	if tok != "" {
		params.Set("token", tok)
	}
	if username != "" {
		params.Set("username", username)
	}
	params.Set("session_id", "session-"+username)

	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/" + url.PathEscape(name) + "?" + params.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// join issues a token and connects, consuming the initial user list
func (e *testEnv) join(t *testing.T, name, username string) *websocket.Conn {
	t.Helper()
	conn := e.dial(t, name, username, e.issue(t, name, username, ""))
	frame := readJSON(t, conn)
	if frame["type"] != "users" {
		t.Fatalf("Expected users frame after join, got %v", frame)
	}
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Frame is not a JSON object: %s", data)
	}
	return frame
}

func sendJSON(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func expectUsers(t *testing.T, conn *websocket.Conn, want ...string) {
	t.Helper()
	frame := readJSON(t, conn)
	if frame["type"] != "users" {
		t.Fatalf("Expected users frame, got %v", frame)
	}
	users, _ := frame["users"].([]interface{})
	if len(users) != len(want) {
		t.Fatalf("Expected users %v, got %v", want, users)
	}
	for i := range want {
		if users[i] != want[i] {
			t.Fatalf("Expected users %v, got %v", want, users)
		}
	}
}

func expectDraw(t *testing.T, conn *websocket.Conn, id interface{}, username string) {
	t.Helper()
	frame := readJSON(t, conn)
	if frame["type"] != "draw" || frame["id"] != id || frame["username"] != username {
		t.Fatalf("Expected draw id=%v by %s, got %v", id, username, frame)
	}
}

// expectRejected reads until the server closes and checks the close code and reason
func expectRejected(t *testing.T, conn *websocket.Conn, reason string) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		closeErr, ok := err.(*websocket.CloseError)
		if !ok {
			t.Fatalf("Expected close frame, got %v", err)
		}
		if closeErr.Code != CloseForbidden {
			t.Errorf("Expected close code %d, got %d", CloseForbidden, closeErr.Code)
		}
		if reason != "" && closeErr.Text != reason {
			t.Errorf("Expected close reason %q, got %q", reason, closeErr.Text)
		}
		return
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// newConnPair returns a server-side Connection and the client socket it writes to
func newConnPair(t *testing.T, bufferSize int) (*Connection, *websocket.Conn) {
	t.Helper()
	serverSide := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to create test WebSocket connection: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	var raw *websocket.Conn
	select {
	case raw = <-serverSide:
	case <-time.After(2 * time.Second):
		t.Fatal("Server side never upgraded")
	}

	conn := NewConnection(raw, bufferSize, 2*time.Second)
	t.Cleanup(func() { conn.Close() })
	return conn, client
}
