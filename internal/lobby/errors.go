package lobby

import "errors"

// Lobby creation errors
var (
	ErrDuplicateLobby    = errors.New("lobby already exists")
	ErrDuplicateUsername = errors.New("username is already in use in another lobby")
)

// Join and token issuance errors
var (
	ErrLobbyNotFound    = errors.New("lobby not found")
	ErrLobbyFull        = errors.New("lobby is full")
	ErrUsernameTaken    = errors.New("username is already connected to this lobby")
	ErrPasswordRequired = errors.New("password required")
	ErrPasswordMismatch = errors.New("wrong password")
)

// Handshake errors
var (
	ErrLobbyClosed   = errors.New("lobby was closed")
	ErrTokenRejected = errors.New("join token was already consumed")
	ErrNilPeer       = errors.New("peer cannot be nil")
)
