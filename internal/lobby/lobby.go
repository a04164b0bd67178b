package lobby

import (
	"log"
	"sort"
	"sync"

	"whiteboard/internal/canvas"
	"whiteboard/internal/protocol"
	"whiteboard/pkg/interfaces"
	"whiteboard/pkg/types"
)

// Peer is what a lobby needs from a live connection
type Peer interface {
	Username() string
	Send(frames ...[]byte) error
}

// Options are per-lobby dispatch policies
type Options struct {
	// BroadcastUndo relays undo commands to peers. Off by default: peers
	// only learn about an undo when the action comes back through redo.
	BroadcastUndo bool
}

// Lobby is one whiteboard session
// ARCHITECTURAL DISCOVERY: mu is the lobby's single critical section. Canvas
// mutation and the fan-out of its result happen under it, so every peer sees
// the same order of operations.
type Lobby struct {
	name         string
	passwordHash string
	maxUsers     int
	hasher       interfaces.PasswordHasher
	opts         Options

	mu      sync.Mutex
	members map[string]struct{}
	conns   []Peer
	canvas  *canvas.Log[[]byte]
	closed  bool
}

func newLobby(name, passwordHash string, maxUsers int, creator string, hasher interfaces.PasswordHasher, opts Options) *Lobby {
	return &Lobby{
		name:         name,
		passwordHash: passwordHash,
		maxUsers:     maxUsers,
		hasher:       hasher,
		opts:         opts,
		members:      map[string]struct{}{creator: {}},
		canvas:       canvas.New[[]byte](),
	}
}

func (l *Lobby) Name() string      { return l.name }
func (l *Lobby) MaxUsers() int     { return l.maxUsers }
func (l *Lobby) HasPassword() bool { return l.passwordHash != "" }

// CheckJoin runs the token issuance checks: capacity, live username, password.
// The password is verified outside the critical section since the hash is immutable.
func (l *Lobby) CheckJoin(username, password string) error {
	l.mu.Lock()
	switch {
	case l.closed:
		l.mu.Unlock()
		return ErrLobbyNotFound
	case l.isFullLocked():
		l.mu.Unlock()
		return ErrLobbyFull
	case l.indexOfUserLocked(username) >= 0:
		l.mu.Unlock()
		return ErrUsernameTaken
	}
	l.mu.Unlock()

	if !l.HasPassword() {
		return nil
	}
	if password == "" {
		return ErrPasswordRequired
	}
	if l.hasher == nil || !l.hasher.Verify(l.passwordHash, password) {
		return ErrPasswordMismatch
	}
	return nil
}

// Join registers a peer. consume redeems the peer's join token and is only
// called once capacity and username checks have passed, so a rejected
// handshake leaves the token untouched.
// On success the canvas history is queued to the new peer as one batch,
// then the user list goes to everyone.
func (l *Lobby) Join(p Peer, consume func() bool) error {
	if p == nil {
		return ErrNilPeer
	}
	username := p.Username()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLobbyClosed
	}
	if l.isFullLocked() {
		return ErrLobbyFull
	}
	if l.indexOfUserLocked(username) >= 0 {
		return ErrUsernameTaken
	}
	if consume != nil && !consume() {
		return ErrTokenRejected
	}

	l.conns = append(l.conns, p)
	l.members[username] = struct{}{}

	if history := l.canvas.Snapshot(); len(history) > 0 {
		if err := p.Send(history...); err != nil {
			log.Printf("History replay failed: lobby=%s user=%s: %v", l.name, username, err)
		}
	}

	l.broadcastUsersLocked()
	return nil
}

// Leave removes exactly this peer and returns how many connections remain.
// removed is false when the peer was not registered.
func (l *Lobby) Leave(p Peer) (remaining int, removed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i, c := range l.conns {
		if c == p {
			idx = i
			break
		}
	}
	if idx < 0 {
		return len(l.conns), false
	}

	copy(l.conns[idx:], l.conns[idx+1:])
	l.conns[len(l.conns)-1] = nil
	l.conns = l.conns[:len(l.conns)-1]
	delete(l.members, p.Username())

	if len(l.conns) > 0 {
		l.broadcastUsersLocked()
	}
	return len(l.conns), true
}

// Apply dispatches one inbound message from sender and relays the result
func (l *Lobby) Apply(sender Peer, msg *protocol.Message) error {
	username := sender.Username()

	l.mu.Lock()
	defer l.mu.Unlock()

	switch msg.Kind {
	case protocol.KindClear:
		l.canvas.Clear()
		msg.Stamp(username)
		data, err := msg.Encode()
		if err != nil {
			return err
		}
		l.broadcastLocked(data, sender)

	case protocol.KindUndo:
		l.canvas.Undo()
		if !l.opts.BroadcastUndo {
			return nil
		}
		msg.Stamp(username)
		data, err := msg.Encode()
		if err != nil {
			return err
		}
		l.broadcastLocked(data, sender)

	case protocol.KindRedo:
		// peers get the restored action first, then the redo itself, even
		// when there was nothing to restore
		if action, ok := l.canvas.Redo(); ok {
			l.broadcastLocked(action, sender)
		}
		msg.Stamp(username)
		data, err := msg.Encode()
		if err != nil {
			return err
		}
		l.broadcastLocked(data, sender)

	default:
		msg.Stamp(username)
		data, err := msg.Encode()
		if err != nil {
			return err
		}
		l.canvas.Append(data)
		l.broadcastLocked(data, sender)
	}

	return nil
}

// broadcastLocked delivers data to every connection except the given one.
// A failing peer is skipped.
func (l *Lobby) broadcastLocked(data []byte, except Peer) {
	for _, c := range l.conns {
		if except != nil && c == except {
			continue
		}
		if err := c.Send(data); err != nil {
			log.Printf("Peer delivery skipped: lobby=%s user=%s: %v", l.name, c.Username(), err)
		}
	}
}

func (l *Lobby) broadcastUsersLocked() {
	data, err := protocol.EncodeUsers(l.usernamesLocked())
	if err != nil {
		log.Printf("Failed to encode user list for lobby %s: %v", l.name, err)
		return
	}
	l.broadcastLocked(data, nil)
}

func (l *Lobby) isFullLocked() bool {
	return l.maxUsers > 0 && len(l.conns) >= l.maxUsers
}

func (l *Lobby) indexOfUserLocked(username string) int {
	for i, c := range l.conns {
		if c.Username() == username {
			return i
		}
	}
	return -1
}

func (l *Lobby) usernamesLocked() []string {
	names := make([]string, len(l.conns))
	for i, c := range l.conns {
		names[i] = c.Username()
	}
	return names
}

// Usernames returns the live connections' usernames in join order
func (l *Lobby) Usernames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usernamesLocked()
}

// Members returns the admitted usernames, sorted
func (l *Lobby) Members() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	members := make([]string, 0, len(l.members))
	for m := range l.members {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// HasMember reports whether username is admitted to this lobby
func (l *Lobby) HasMember(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.members[username]
	return ok
}

// ConnectionCount is the authoritative current user count
func (l *Lobby) ConnectionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}

// Canvas returns a copy of the encoded canvas actions, in order
func (l *Lobby) Canvas() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canvas.Snapshot()
}

// RedoDepth returns the size of the redo stack
func (l *Lobby) RedoDepth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canvas.RedoLen()
}

// Summary returns the public listing view
func (l *Lobby) Summary() types.LobbySummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return types.LobbySummary{
		Name:         l.name,
		HasPassword:  l.passwordHash != "",
		CurrentUsers: len(l.conns),
		MaxUsers:     types.Capacity(l.maxUsers),
	}
}
