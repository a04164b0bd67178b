package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Registry-related errors
var (
	ErrNilConnection     = errors.New("connection cannot be nil")
	ErrMissingCredential = errors.New("connection must carry a username and lobby before registration")
)

// Handshake rejection reasons, sent as the close frame text
var (
	ErrUnknownLobby     = errors.New("lobby not found")
	ErrMissingUsername  = errors.New("username required")
	ErrInvalidJoinToken = errors.New("invalid token")
)
