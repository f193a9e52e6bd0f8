// Package server implements the collaborative pad session broker.
//
// It is organized around four pieces: the session allocator that mints
// unguessable pad identifiers, the room registry that tracks which
// connections are members of which pad, the relay that fans presence and
// content events out to a room's other members, and the WebSocket gateway
// that terminates client connections and adapts wire frames into relay
// calls. Configuration, origin checks, rate limiting, and HTTP wiring live
// in their own files to keep the codebase maintainable and testable.
package server
