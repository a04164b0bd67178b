package protocol

import "errors"

var (
	ErrMalformedMessage = errors.New("malformed message: expected a JSON object with a string type field")
	ErrEncodeFailed     = errors.New("failed to encode message")
)
