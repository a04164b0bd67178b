package websocket

import (
	"log"
	"sync"
)

// Registry tracks every registered socket in the process, independent of lobby state.
// It serves health reporting and shutdown; fan-out stays with the lobbies.
type Registry struct {
	mu          sync.RWMutex
	connections map[*Connection]struct{}
	byLobby     map[string]map[*Connection]struct{}
}

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[*Connection]struct{}),
		byLobby:     make(map[string]map[*Connection]struct{}),
	}
}

// RegisterConnection starts tracking conn under its lobby
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	lobbyName := conn.LobbyName()
	if lobbyName == "" || conn.Username() == "" {
		return ErrMissingCredential
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[conn] = struct{}{}
	if r.byLobby[lobbyName] == nil {
		r.byLobby[lobbyName] = make(map[*Connection]struct{})
	}
	r.byLobby[lobbyName][conn] = struct{}{}
	return nil
}

// UnregisterConnection is idempotent and only removes this exact instance
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[conn]; !ok {
		return
	}
	delete(r.connections, conn)

	lobbyName := conn.LobbyName()
	if conns, ok := r.byLobby[lobbyName]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(r.byLobby, lobbyName)
		}
	}
}

// GetLobbyConnections returns the tracked sockets for one lobby, in no particular order
func (r *Registry) GetLobbyConnections(lobbyName string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.byLobby[lobbyName]))
	for c := range r.byLobby[lobbyName] {
		conns = append(conns, c)
	}
	return conns
}

// CloseAll sends a close frame to every tracked socket. Their read loops then
// run the normal disconnect cleanup.
func (r *Registry) CloseAll(code int, reason string) int {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for c := range r.connections {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if err := c.Reject(code, reason); err != nil {
			log.Printf("Close during shutdown failed: lobby=%s user=%s: %v", c.LobbyName(), c.Username(), err)
		}
	}
	return len(conns)
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"active_lobbies":    len(r.byLobby),
	}
}
