package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// ARCHITECTURAL DISCOVERY: Action type constants are the only payload fields
// the server interprets; everything else in a drawing message is opaque
const (
	ActionTypeClear = "clear"
	ActionTypeUndo  = "undo"
	ActionTypeRedo  = "redo"
	ActionTypeUsers = "users"
)

// Lobby activity kinds recorded by the journal
const (
	EventLobbyCreated = "created"
	EventUserJoined   = "joined"
	EventUserLeft     = "left"
	EventLobbyDeleted = "deleted"
)

// UnlimitedSentinel is how a zero capacity is rendered to clients
const UnlimitedSentinel = "∞"

// Capacity is a lobby's max_users value. Zero means unlimited.
type Capacity int

// MarshalJSON renders zero as the unlimited sentinel and any other value as a number
func (c Capacity) MarshalJSON() ([]byte, error) {
	if c == 0 {
		return json.Marshal(UnlimitedSentinel)
	}
	return json.Marshal(int(c))
}

// UnmarshalJSON accepts the numeric form, a numeric string from form inputs,
// and the sentinel. null leaves the value unchanged.
func (c *Capacity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case UnlimitedSentinel, "":
			*c = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return ErrInvalidCapacity
		}
		*c = Capacity(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return ErrInvalidCapacity
	}
	*c = Capacity(n)
	return nil
}

// LobbySummary is the public, read-only view of a lobby returned by listings
// FUNCTIONAL DISCOVERY: CurrentUsers counts live sockets, not admitted members
type LobbySummary struct {
	Name         string   `json:"name"`
	HasPassword  bool     `json:"has_password"`
	CurrentUsers int      `json:"current_users"`
	MaxUsers     Capacity `json:"max_users"`
}

// LobbyEvent is one row of the lobby activity journal
type LobbyEvent struct {
	ID        string    `json:"id" db:"id"`
	Lobby     string    `json:"lobby" db:"lobby"`
	Username  string    `json:"username,omitempty" db:"username"`
	Kind      string    `json:"kind" db:"kind"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
