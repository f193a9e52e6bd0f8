// Package server defines the JSON wire events exchanged with pad clients and
// small helpers shared across client and relay logic.
package server

import (
	"encoding/json"
	"strings"
)

// Wire event names. Inbound frames carry join, leave, and code-change;
// outbound frames carry message, code-update, and error.
const (
	EventJoin       = "join"
	EventLeave      = "leave"
	EventCodeChange = "code-change"
	EventMessage    = "message"
	EventCodeUpdate = "code-update"
	EventError      = "error"
)

// Envelope is the inbound frame format. Room names the target session,
// Username accompanies join events, and Code carries the opaque content
// blob of a code-change. Unused fields are simply absent.
type Envelope struct {
	Event    string          `json:"event"`
	Room     string          `json:"room,omitempty"`
	Username string          `json:"username,omitempty"`
	Code     json.RawMessage `json:"code,omitempty"`
}

// PresenceMessage is the outbound frame announcing a join or leave to the
// other members of a room.
type PresenceMessage struct {
	Event string `json:"event"`
	Msg   string `json:"msg"`
}

// CodeUpdate is the outbound frame fanning a content change out to the other
// members of a room. The payload is relayed verbatim; the server never
// inspects or merges it.
type CodeUpdate struct {
	Event string          `json:"event"`
	Code  json.RawMessage `json:"code"`
}

// ErrorMessage is the outbound frame notifying a sender that its event was
// rejected. Rejections never affect other members.
type ErrorMessage struct {
	Event string `json:"event"`
	Msg   string `json:"msg"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
