package session

import "github.com/google/uuid"

// NewID mints a fresh session identifier: opaque, globally unique, and
// non-guessable. The caller is responsible for delivering it to the client
// (cookie, token); the store only ever sees it as an opaque string.
func NewID() string {
	return uuid.NewString()
}
