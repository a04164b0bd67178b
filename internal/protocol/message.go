// Package protocol decodes whiteboard socket frames into a small tagged variant.
//
// Only the "type" field is interpreted. Every other field of a frame is kept
// as raw JSON and relayed unchanged, with "username" overwritten by the server.
package protocol

import (
	"encoding/json"

	"whiteboard/pkg/types"
)

// Kind is the server-side interpretation of a frame's type field
type Kind int

const (
	KindDraw Kind = iota
	KindClear
	KindUndo
	KindRedo
)

func (k Kind) String() string {
	switch k {
	case KindClear:
		return types.ActionTypeClear
	case KindUndo:
		return types.ActionTypeUndo
	case KindRedo:
		return types.ActionTypeRedo
	default:
		return "draw"
	}
}

// Message is a decoded inbound frame
type Message struct {
	Type   string
	Kind   Kind
	fields map[string]json.RawMessage
}

// Decode parses a frame. Anything that is not a JSON object carrying a
// non-empty string "type" is ErrMalformedMessage.
func Decode(data []byte) (*Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, ErrMalformedMessage
	}

	raw, ok := fields["type"]
	if !ok {
		return nil, ErrMalformedMessage
	}
	var msgType string
	if err := json.Unmarshal(raw, &msgType); err != nil || msgType == "" {
		return nil, ErrMalformedMessage
	}

	return &Message{
		Type:   msgType,
		Kind:   kindOf(msgType),
		fields: fields,
	}, nil
}

func kindOf(msgType string) Kind {
	switch msgType {
	case types.ActionTypeClear:
		return KindClear
	case types.ActionTypeUndo:
		return KindUndo
	case types.ActionTypeRedo:
		return KindRedo
	default:
		return KindDraw
	}
}

// Stamp records the sender on the message, replacing any client-supplied value
func (m *Message) Stamp(username string) {
	raw, err := json.Marshal(username)
	if err != nil {
		return
	}
	m.fields["username"] = raw
}

// Field returns the raw JSON of a payload field
func (m *Message) Field(name string) (json.RawMessage, bool) {
	raw, ok := m.fields[name]
	return raw, ok
}

// Encode serializes the message with all original fields preserved
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m.fields)
	if err != nil {
		return nil, ErrEncodeFailed
	}
	return data, nil
}

// UsersMessage is the membership broadcast frame
type UsersMessage struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// EncodeUsers builds {"type":"users","users":[...]}
func EncodeUsers(usernames []string) ([]byte, error) {
	if usernames == nil {
		usernames = []string{}
	}
	data, err := json.Marshal(UsersMessage{Type: types.ActionTypeUsers, Users: usernames})
	if err != nil {
		return nil, ErrEncodeFailed
	}
	return data, nil
}
