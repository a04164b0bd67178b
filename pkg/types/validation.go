package types

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// IsValidLobbyName checks if a lobby name can be used as a registry key and a URL path segment
func IsValidLobbyName(name string) bool {
	n := utf8.RuneCountInString(name)
	if n < 1 || n > 64 {
		return false
	}
	if strings.ContainsRune(name, '/') {
		return false
	}
	return !hasControl(name)
}

// IsValidUsername checks if a username meets format requirements
// FUNCTIONAL DISCOVERY: 1-50 character limit keeps the user list renderable
func IsValidUsername(username string) bool {
	n := utf8.RuneCountInString(username)
	if n < 1 || n > 50 {
		return false
	}
	if strings.TrimSpace(username) != username {
		return false
	}
	return !hasControl(username)
}

// IsValidCapacity rejects negative limits
func IsValidCapacity(maxUsers int) bool {
	return maxUsers >= 0
}

// IsValidEventKind checks the journal event kind against the known set
func IsValidEventKind(kind string) bool {
	switch kind {
	case EventLobbyCreated, EventUserJoined, EventUserLeft, EventLobbyDeleted:
		return true
	default:
		return false
	}
}

// ValidateLobbyRequest validates the name/username pair of a create request
func ValidateLobbyRequest(name, username string) error {
	if !IsValidLobbyName(name) {
		return ErrInvalidLobbyName
	}
	if !IsValidUsername(username) {
		return ErrInvalidUsername
	}
	return nil
}

func hasControl(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
