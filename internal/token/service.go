// Package token issues and redeems single-use lobby join tokens.
package token

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"whiteboard/internal/lobby"
	"whiteboard/pkg/types"
)

// binding is what a token authorizes
type binding struct {
	lobby    string
	username string
}

// Service holds outstanding join tokens
// FUNCTIONAL DISCOVERY: Tokens have no time-based expiry. They leave the
// store when redeemed, when their user disconnects from the bound lobby, or
// when the lobby is deleted.
// Lock order: registry -> token store, lobby -> token store.
type Service struct {
	registry *lobby.Registry

	mu     sync.Mutex
	tokens map[string]binding
}

// NewService creates a token service over registry. Tokens of a deleted
// lobby are purged so they cannot open a later lobby of the same name.
func NewService(registry *lobby.Registry) *Service {
	s := &Service{
		registry: registry,
		tokens:   make(map[string]binding),
	}
	registry.OnDelete(func(name string) {
		if n := s.PurgeLobby(name); n > 0 {
			log.Printf("Purged %d unused join tokens of deleted lobby %s", n, name)
		}
	})
	return s
}

// Issue validates a join request and mints a token bound to (name, username).
// Checks run in order: lobby exists, username, capacity, live username, password.
func (s *Service) Issue(ctx context.Context, name, username, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l, ok := s.registry.Get(name)
	if !ok {
		return "", lobby.ErrLobbyNotFound
	}
	if !types.IsValidUsername(username) {
		return "", types.ErrInvalidUsername
	}
	if err := l.CheckJoin(username, password); err != nil {
		return "", err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	tok := id.String()

	s.mu.Lock()
	s.tokens[tok] = binding{lobby: name, username: username}
	s.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: A deletion after this lookup runs the purge hook
	// and removes the token; a deletion before it is caught here. Either way no
	// token outlives the lobby instance it was checked against.
	if current, ok := s.registry.Get(name); !ok || current != l {
		s.mu.Lock()
		delete(s.tokens, tok)
		s.mu.Unlock()
		return "", lobby.ErrLobbyNotFound
	}

	log.Printf("Join token issued: lobby=%s user=%s", name, username)
	return tok, nil
}

// Peek reports whether tok exists and is bound to exactly (name, username)
func (s *Service) Peek(tok, name, username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.tokens[tok]
	return ok && b.lobby == name && b.username == username
}

// Consume redeems tok if it is bound to exactly (name, username).
// At most one concurrent caller can succeed for a given token.
func (s *Service) Consume(tok, name, username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.tokens[tok]
	if !ok || b.lobby != name || b.username != username {
		return false
	}
	delete(s.tokens, tok)
	return true
}

// Purge deletes every token bound to (name, username) and returns how many went
func (s *Service) Purge(name, username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for tok, b := range s.tokens {
		if b.lobby == name && b.username == username {
			delete(s.tokens, tok)
			purged++
		}
	}
	return purged
}

// PurgeLobby deletes every token bound to name
func (s *Service) PurgeLobby(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for tok, b := range s.tokens {
		if b.lobby == name {
			delete(s.tokens, tok)
			purged++
		}
	}
	return purged
}

// Outstanding returns the number of unredeemed tokens
func (s *Service) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
