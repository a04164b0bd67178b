package lobby

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"whiteboard/internal/protocol"
)

// plainHasher is a reversible stand-in for bcrypt in unit tests
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }
func (plainHasher) Verify(hash, password string) bool    { return hash == "plain:"+password }

// fakePeer records every frame it is sent
type fakePeer struct {
	name string

	mu     sync.Mutex
	frames []string
	fail   error
}

func newPeer(name string) *fakePeer {
	return &fakePeer{name: name}
}

func (p *fakePeer) Username() string { return p.name }

func (p *fakePeer) Send(frames ...[]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	for _, f := range frames {
		p.frames = append(p.frames, string(f))
	}
	return nil
}

func (p *fakePeer) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.frames))
	copy(out, p.frames)
	return out
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}

func newTestRegistry(opts Options) *Registry {
	return NewRegistry(plainHasher{}, opts, nil)
}

func mustCreate(t *testing.T, r *Registry, name, username, password string, maxUsers int) *Lobby {
	t.Helper()
	if _, err := r.Create(name, username, password, maxUsers); err != nil {
		t.Fatalf("Create(%s) failed: %v", name, err)
	}
	l, ok := r.Get(name)
	if !ok {
		t.Fatalf("Lobby %s not found after create", name)
	}
	return l
}

func mustJoin(t *testing.T, l *Lobby, p *fakePeer) {
	t.Helper()
	if err := l.Join(p, func() bool { return true }); err != nil {
		t.Fatalf("Join(%s) failed: %v", p.name, err)
	}
}

func mustApply(t *testing.T, l *Lobby, sender Peer, frame string) {
	t.Helper()
	msg, err := protocol.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode(%s) failed: %v", frame, err)
	}
	if err := l.Apply(sender, msg); err != nil {
		t.Fatalf("Apply(%s) failed: %v", frame, err)
	}
}

// assertJSON compares two JSON documents ignoring key order
func assertJSON(t *testing.T, want, got string) {
	t.Helper()
	var w, g interface{}
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("bad expected JSON %s: %v", want, err)
	}
	if err := json.Unmarshal([]byte(got), &g); err != nil {
		t.Fatalf("bad actual JSON %s: %v", got, err)
	}
	wb, _ := json.Marshal(w)
	gb, _ := json.Marshal(g)
	if string(wb) != string(gb) {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func usersFrame(names ...string) string {
	return `{"type":"users","users":["` + strings.Join(names, `","`) + `"]}`
}
