package websocket

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
	"whiteboard/internal/activity"
	"whiteboard/internal/config"
	"whiteboard/internal/lobby"
	"whiteboard/internal/protocol"
	"whiteboard/internal/token"
	"whiteboard/pkg/types"
)

// CloseForbidden is the close code for every rejected handshake
const CloseForbidden = 4003

// CloseGoingAway is sent to live sockets on shutdown
const CloseGoingAway = websocket.CloseGoingAway

// Handler runs the lobby socket endpoint
// ARCHITECTURAL DISCOVERY: The socket is upgraded before any check runs, so a
// rejection is a close frame with code 4003 rather than an HTTP status.
type Handler struct {
	lobbies  *lobby.Registry
	tokens   *token.Service
	registry *Registry
	recorder *activity.Recorder
	cfg      *config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewHandler creates a socket handler. cfg nil means defaults.
func NewHandler(lobbies *lobby.Registry, tokens *token.Service, registry *Registry, cfg *config.WebSocketConfig) *Handler {
	if cfg == nil {
		cfg = config.DefaultConfig().WebSocket
	}
	return &Handler{
		lobbies:  lobbies,
		tokens:   tokens,
		registry: registry,
		recorder: lobbies.Recorder(),
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			// FUNCTIONAL DISCOVERY: Browser clients are served from arbitrary origins
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// lobbyNameFrom reads the {lobby_name} route variable, falling back to the
// last path segment when the handler is mounted without mux
func lobbyNameFrom(r *http.Request) string {
	if name, ok := mux.Vars(r)["lobby_name"]; ok {
		return name
	}
	return strings.TrimPrefix(r.URL.Path, "/ws/")
}

// HandleWebSocket serves GET /ws/{lobby_name}?token=&username=&session_id=
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	lobbyName := lobbyNameFrom(r)
	query := r.URL.Query()
	joinToken := query.Get("token")
	username := query.Get("username")
	sessionID := query.Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.cfg.BufferSize, h.cfg.WriteTimeout)
	wsConn.SetCredentials(username, lobbyName, sessionID)

	l, err := h.handshake(wsConn, lobbyName, username, joinToken)
	if err != nil {
		log.Printf("Handshake rejected: lobby=%s user=%s: %v", lobbyName, username, err)
		_ = wsConn.Reject(CloseForbidden, err.Error())
		return
	}

	if err := h.registry.RegisterConnection(wsConn); err != nil {
		log.Printf("Failed to track connection: %v", err)
	}
	log.Printf("User joined: lobby=%s user=%s session=%s", lobbyName, username, sessionID)
	h.recorder.Record(lobbyName, username, types.EventUserJoined)

	go h.handleConnection(wsConn, l)
}

// handshake runs the join checks in order: lobby exists, username present,
// token bound to (lobby, username), then the lobby's own capacity and
// uniqueness checks. The token is redeemed only by a successful join.
func (h *Handler) handshake(conn *Connection, lobbyName, username, joinToken string) (*lobby.Lobby, error) {
	l, ok := h.lobbies.Get(lobbyName)
	if !ok {
		return nil, ErrUnknownLobby
	}
	if username == "" {
		return nil, ErrMissingUsername
	}
	if !h.tokens.Peek(joinToken, lobbyName, username) {
		return nil, ErrInvalidJoinToken
	}

	err := l.Join(conn, func() bool {
		return h.tokens.Consume(joinToken, lobbyName, username)
	})
	switch err {
	case nil:
		return l, nil
	case lobby.ErrLobbyClosed:
		return nil, ErrUnknownLobby
	case lobby.ErrTokenRejected:
		return nil, ErrInvalidJoinToken
	default:
		return nil, err
	}
}

// handleConnection owns the socket until it closes, then runs disconnect cleanup
func (h *Handler) handleConnection(conn *Connection, l *lobby.Lobby) {
	defer h.cleanup(conn, l)

	if h.cfg.MaxMessageSize > 0 {
		conn.conn.SetReadLimit(h.cfg.MaxMessageSize)
	}

	// TECHNICAL DISCOVERY: Read deadline is pushed forward by every pong;
	// a peer that stops answering pings times out after ReadTimeout
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	go h.heartbeat(conn)

	var limiter *rate.Limiter
	if h.cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), h.cfg.Burst)
	}

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: lobby=%s user=%s: %v", l.Name(), conn.Username(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		// throttled frames wait rather than drop; a dropped draw would fork the canvas
		if limiter != nil {
			if err := limiter.Wait(conn.ctx); err != nil {
				return
			}
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Printf("Dropping malformed frame: lobby=%s user=%s: %v", l.Name(), conn.Username(), err)
			continue
		}
		if err := l.Apply(conn, msg); err != nil {
			log.Printf("Failed to apply %s: lobby=%s user=%s: %v", msg.Kind, l.Name(), conn.Username(), err)
		}
	}
}

func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// cleanup runs once per registered connection: leave the lobby, forget
// outstanding tokens for the pair, and delete the lobby if it emptied
func (h *Handler) cleanup(conn *Connection, l *lobby.Lobby) {
	_ = conn.Close()
	username := conn.Username()

	remaining, removed := l.Leave(conn)
	purged := h.tokens.Purge(l.Name(), username)

	if removed {
		log.Printf("User left: lobby=%s user=%s remaining=%d purged_tokens=%d", l.Name(), username, remaining, purged)
		h.recorder.Record(l.Name(), username, types.EventUserLeft)
	}
	if remaining == 0 {
		h.lobbies.DeleteIfEmpty(l)
	}

	// last, so a drained registry means every event above is queued
	h.registry.UnregisterConnection(conn)
}
