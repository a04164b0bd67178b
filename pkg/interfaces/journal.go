package interfaces

import (
	"context"

	"whiteboard/pkg/types"
)

// Journal records lobby lifecycle events
// FUNCTIONAL DISCOVERY: The journal is an audit trail only; lobby state is
// never rebuilt from it
type Journal interface {
	// Record appends one event
	Record(ctx context.Context, event *types.LobbyEvent) error

	// LobbyActivity returns the most recent events of a lobby, newest first
	LobbyActivity(ctx context.Context, lobby string, limit int) ([]*types.LobbyEvent, error)

	// HealthCheck verifies the backing store
	HealthCheck(ctx context.Context) error

	// Close releases resources
	Close() error
}
