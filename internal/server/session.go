// Package server allocates the opaque session identifiers that name
// collaborative pads.
package server

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionID identifies one collaborative pad. It is opaque to clients and
// carries no structure beyond global uniqueness; a freshly allocated ID is
// drawn from a 128-bit random space and is never reused.
type SessionID string

// NewSessionID allocates a new globally-unique session identifier.
// The only conceivable failure is exhaustion of the OS entropy source,
// which panics inside the uuid package and is treated as fatal.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// ParseSessionID validates that a client-supplied room identifier is a
// well-formed session ID. It does not check whether the ID was ever
// allocated; that is the registry's concern.
func ParseSessionID(raw string) (SessionID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid session id %q: %w", raw, err)
	}
	return SessionID(id.String()), nil
}
