package token

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"whiteboard/internal/lobby"
	"whiteboard/pkg/types"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }
func (plainHasher) Verify(hash, password string) bool    { return hash == "plain:"+password }

type namedPeer string

func (p *namedPeer) Username() string          { return string(*p) }
func (p *namedPeer) Send(frames ...[]byte) error { return nil }

func setup(t *testing.T) (*lobby.Registry, *Service) {
	t.Helper()
	r := lobby.NewRegistry(plainHasher{}, lobby.Options{}, nil)
	return r, NewService(r)
}

func TestService_IssueErrors(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()

	if _, err := r.Create("art", "alice", "secret", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create("open", "carol", "", 0); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		lobby    string
		username string
		password string
		want     error
	}{
		{"unknown lobby", "nope", "bob", "", lobby.ErrLobbyNotFound},
		{"malformed lobby name", "a/b", "bob", "", lobby.ErrLobbyNotFound},
		{"unknown lobby beats invalid username", "nope", "", "", lobby.ErrLobbyNotFound},
		{"invalid username", "art", "", "", types.ErrInvalidUsername},
		{"missing password", "art", "bob", "", lobby.ErrPasswordRequired},
		{"wrong password", "art", "bob", "guess", lobby.ErrPasswordMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := s.Issue(ctx, tt.lobby, tt.username, tt.password)
			if err != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if tok != "" {
				t.Error("No token should be issued on error")
			}
		})
	}

	if s.Outstanding() != 0 {
		t.Errorf("Expected no outstanding tokens, got %d", s.Outstanding())
	}

	l, _ := r.Get("art")
	alice := namedPeer("alice")
	if err := l.Join(&alice, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Issue(ctx, "art", "bob", "secret"); err != lobby.ErrLobbyFull {
		t.Errorf("Expected ErrLobbyFull, got %v", err)
	}

	o, _ := r.Get("open")
	carol := namedPeer("carol")
	if err := o.Join(&carol, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Issue(ctx, "open", "carol", ""); err != lobby.ErrUsernameTaken {
		t.Errorf("Expected ErrUsernameTaken, got %v", err)
	}
}

func TestService_IssueHonorsContext(t *testing.T) {
	r, s := setup(t)
	if _, err := r.Create("art", "alice", "", 0); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Issue(ctx, "art", "alice", ""); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestService_ConsumeOnce(t *testing.T) {
	r, s := setup(t)
	if _, err := r.Create("art", "alice", "", 0); err != nil {
		t.Fatal(err)
	}

	tok, err := s.Issue(context.Background(), "art", "alice", "")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if len(tok) != 36 {
		t.Errorf("Expected a UUID token, got %q", tok)
	}

	if !s.Peek(tok, "art", "alice") {
		t.Error("Peek should accept a fresh token")
	}
	if s.Consume(tok, "art", "bob") {
		t.Error("Consume must reject a different username")
	}
	if s.Consume(tok, "music", "alice") {
		t.Error("Consume must reject a different lobby")
	}
	if !s.Consume(tok, "art", "alice") {
		t.Fatal("Consume should accept the bound pair")
	}
	if s.Consume(tok, "art", "alice") {
		t.Error("Token must be single-use")
	}
	if s.Peek(tok, "art", "alice") {
		t.Error("Peek should reject a redeemed token")
	}
}

func TestService_ConcurrentConsume(t *testing.T) {
	r, s := setup(t)
	if _, err := r.Create("art", "alice", "", 0); err != nil {
		t.Fatal(err)
	}
	tok, err := s.Issue(context.Background(), "art", "alice", "")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var wins int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Consume(tok, "art", "alice") {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one successful consume, got %d", wins)
	}
}

func TestService_Purge(t *testing.T) {
	r, s := setup(t)
	if _, err := r.Create("art", "alice", "", 0); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Issue(ctx, "art", "alice", ""); err != nil {
			t.Fatal(err)
		}
	}
	other, err := s.Issue(ctx, "art", "bob", "")
	if err != nil {
		t.Fatal(err)
	}

	if n := s.Purge("art", "alice"); n != 3 {
		t.Errorf("Expected 3 purged, got %d", n)
	}
	if s.Outstanding() != 1 {
		t.Errorf("Expected 1 outstanding, got %d", s.Outstanding())
	}
	if !s.Peek(other, "art", "bob") {
		t.Error("Unrelated token should survive a purge")
	}
}

func TestService_DeletedLobbyPurgesTokens(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()
	if _, err := r.Create("art", "alice", "", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create("music", "carol", "", 0); err != nil {
		t.Fatal(err)
	}

	stale, err := s.Issue(ctx, "art", "mallory", "")
	if err != nil {
		t.Fatal(err)
	}
	kept, err := s.Issue(ctx, "music", "dave", "")
	if err != nil {
		t.Fatal(err)
	}

	old, _ := r.Get("art")
	if !r.DeleteIfEmpty(old) {
		t.Fatal("Expected empty lobby to be deleted")
	}

	if s.Peek(stale, "art", "mallory") {
		t.Error("Token of a deleted lobby must not survive")
	}
	if !s.Peek(kept, "music", "dave") {
		t.Error("Tokens of other lobbies must survive")
	}

	// a new lobby under the same name does not revive the old token
	if _, err := r.Create("art", "erin", "s3cret", 0); err != nil {
		t.Fatal(err)
	}
	if s.Peek(stale, "art", "mallory") || s.Consume(stale, "art", "mallory") {
		t.Error("Old token must not open the recreated lobby")
	}
	if n := s.PurgeLobby("music"); n != 1 {
		t.Errorf("Expected 1 purged for music, got %d", n)
	}
}

func TestService_IssueRacingDeletion(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		if _, err := r.Create("art", "alice", "", 0); err != nil {
			t.Fatal(err)
		}
		l, _ := r.Get("art")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Issue(ctx, "art", "mallory", "")
		}()
		go func() {
			defer wg.Done()
			r.DeleteIfEmpty(l)
		}()
		wg.Wait()

		if _, ok := r.Get("art"); !ok && s.Outstanding() != 0 {
			t.Fatalf("Iteration %d: %d tokens outlived their lobby", i, s.Outstanding())
		}
		if _, ok := r.Get("art"); ok {
			r.DeleteIfEmpty(l)
		}
	}
}
