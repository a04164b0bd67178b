package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidLobbyName = errors.New("lobby name must be 1-64 characters without '/' or control characters")
	ErrInvalidUsername  = errors.New("username must be 1-50 characters without control characters or surrounding spaces")
	ErrInvalidCapacity  = errors.New("max_users must be a non-negative integer")
	ErrInvalidEventKind = errors.New("invalid lobby event kind")
)
