// Package lobby owns every whiteboard lobby in the process: membership,
// live connections, canvas history and the fan-out between them.
package lobby

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"whiteboard/internal/activity"
	"whiteboard/pkg/interfaces"
	"whiteboard/pkg/types"
)

// Registry maps lobby names to lobbies
// ARCHITECTURAL DISCOVERY: Lock order is registry -> lobby, never the reverse.
// Create, delete and list all take the registry lock first.
type Registry struct {
	mu       sync.RWMutex
	lobbies  map[string]*Lobby
	hasher   interfaces.PasswordHasher
	opts     Options
	recorder *activity.Recorder
	onDelete []func(name string)
}

// NewRegistry creates an empty registry. recorder may be nil.
func NewRegistry(hasher interfaces.PasswordHasher, opts Options, recorder *activity.Recorder) *Registry {
	if recorder == nil {
		recorder = activity.NewRecorder(nil)
	}
	return &Registry{
		lobbies:  make(map[string]*Lobby),
		hasher:   hasher,
		opts:     opts,
		recorder: recorder,
	}
}

// List returns a snapshot of every lobby, sorted by name
func (r *Registry) List() []types.LobbySummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]types.LobbySummary, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		summaries = append(summaries, l.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}

// Create registers a new lobby with username as its first member.
// The creator is not a live connection until they complete the socket handshake.
func (r *Registry) Create(name, username, password string, maxUsers int) (string, error) {
	if err := types.ValidateLobbyRequest(name, username); err != nil {
		return "", err
	}
	if !types.IsValidCapacity(maxUsers) {
		return "", types.ErrInvalidCapacity
	}

	// cheap conflict check before paying for the hash
	r.mu.RLock()
	err := r.conflictLocked(name, username)
	r.mu.RUnlock()
	if err != nil {
		return "", err
	}

	var hash string
	if password != "" {
		if r.hasher == nil {
			return "", fmt.Errorf("password hashing unavailable")
		}
		hash, err = r.hasher.Hash(password)
		if err != nil {
			return "", err
		}
	}

	r.mu.Lock()
	if err := r.conflictLocked(name, username); err != nil {
		r.mu.Unlock()
		return "", err
	}
	r.lobbies[name] = newLobby(name, hash, maxUsers, username, r.hasher, r.opts)
	r.mu.Unlock()

	log.Printf("Lobby created: name=%s creator=%s max_users=%d password=%t", name, username, maxUsers, hash != "")
	r.recorder.Record(name, username, types.EventLobbyCreated)
	return name, nil
}

// conflictLocked checks lobby name and global username uniqueness
func (r *Registry) conflictLocked(name, username string) error {
	if _, exists := r.lobbies[name]; exists {
		return ErrDuplicateLobby
	}
	for _, l := range r.lobbies {
		if l.HasMember(username) {
			return ErrDuplicateUsername
		}
	}
	return nil
}

// Get looks up a lobby by name
func (r *Registry) Get(name string) (*Lobby, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lobbies[name]
	return l, ok
}

// DeleteIfEmpty removes l if it is still the registered lobby under its name
// and has no connections. A removed lobby is marked closed so a handshake
// racing the deletion cannot join it.
func (r *Registry) DeleteIfEmpty(l *Lobby) bool {
	if l == nil {
		return false
	}

	r.mu.Lock()
	current, ok := r.lobbies[l.name]
	if !ok || current != l {
		r.mu.Unlock()
		return false
	}

	l.mu.Lock()
	if len(l.conns) > 0 {
		l.mu.Unlock()
		r.mu.Unlock()
		return false
	}
	l.closed = true
	l.mu.Unlock()

	delete(r.lobbies, l.name)
	for _, fn := range r.onDelete {
		fn(l.name)
	}
	r.mu.Unlock()

	log.Printf("Lobby deleted: name=%s", l.name)
	r.recorder.Record(l.name, "", types.EventLobbyDeleted)
	return true
}

// OnDelete registers fn to run when a lobby is deleted. fn runs under the
// registry lock, before the name can be reused, and must not call back into
// the registry.
func (r *Registry) OnDelete(fn func(name string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDelete = append(r.onDelete, fn)
}

// Recorder exposes the activity recorder shared with the handlers
func (r *Registry) Recorder() *activity.Recorder {
	return r.recorder
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := 0
	for _, l := range r.lobbies {
		connections += l.ConnectionCount()
	}
	return map[string]int{
		"lobbies":           len(r.lobbies),
		"total_connections": connections,
	}
}
