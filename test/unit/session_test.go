// Package unit contains unit tests for individual components of the pad relay server.
//
// These tests focus on testing specific functions and methods in isolation,
// using pumpless clients where necessary to avoid dependencies on real
// network connections.
package unit

import (
	"testing"

	"github.com/rtpad/padserver/internal/server"
)

// TestSessionIDUniqueness verifies the allocator's core guarantee: a large
// number of allocations yields no repeats.
func TestSessionIDUniqueness(t *testing.T) {
	const n = 10000

	seen := make(map[server.SessionID]struct{}, n)
	for i := 0; i < n; i++ {
		id := server.NewSessionID()
		if id == "" {
			t.Fatal("NewSessionID returned empty ID")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("Duplicate session ID allocated after %d allocations: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

// TestNewSessionIDIsWellFormed verifies that allocated IDs survive a
// round trip through ParseSessionID.
func TestNewSessionIDIsWellFormed(t *testing.T) {
	id := server.NewSessionID()

	parsed, err := server.ParseSessionID(string(id))
	if err != nil {
		t.Fatalf("Allocated ID failed validation: %v", err)
	}
	if parsed != id {
		t.Errorf("Round trip changed ID: got %s, want %s", parsed, id)
	}
}

// TestParseSessionIDRejectsGarbage verifies that malformed identifiers are
// rejected with an error.
func TestParseSessionIDRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty string", raw: ""},
		{name: "not a uuid", raw: "my-room"},
		{name: "truncated uuid", raw: "d9428888-122b-11e1-b85c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := server.ParseSessionID(tt.raw); err == nil {
				t.Errorf("Expected error for %q, got none", tt.raw)
			}
		})
	}
}
