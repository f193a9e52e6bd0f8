// Package integration contains integration tests for the pad relay server.
//
// These tests verify that multiple components work together correctly by
// exercising real HTTP servers, WebSocket connections, and the complete
// join/broadcast/disconnect lifecycle end to end.
package integration

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rtpad/padserver/internal/server"
	"github.com/rtpad/padserver/test/testhelpers"
)

// testEnv bundles one fully wired broker instance behind an httptest server.
type testEnv struct {
	registry *server.Registry
	hub      *server.Hub
	baseURL  string
	wsURL    string
}

// newTestEnv starts a broker with the given config (nil for defaults) and
// room policy, tearing everything down when the test finishes.
func newTestEnv(t *testing.T, cfg *server.Config, strict bool) *testEnv {
	t.Helper()

	server.SetConfig(cfg)
	t.Cleanup(func() { server.SetConfig(nil) })

	registry := server.NewRegistry(strict)
	hub := server.NewHub()
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	relay := server.NewRelay(registry, hub)
	verifier := server.NewStaticTokenVerifier(map[string]string{"valid-token": "Alice"})
	mux := server.SetupRoutes(hub, relay, registry, verifier)

	ts := testhelpers.CreateTestServer(mux)
	t.Cleanup(ts.Close)

	return &testEnv{
		registry: registry,
		hub:      hub,
		baseURL:  ts.URL,
		wsURL:    "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

// joinPad dials the gateway and joins the given pad, giving the server a
// moment to register membership before the caller proceeds.
func (env *testEnv) joinPad(t *testing.T, pad, username string) *websocket.Conn {
	t.Helper()

	conn, err := testhelpers.ConnectWebSocket(env.wsURL)
	if err != nil {
		t.Fatalf("Failed to connect %s: %v", username, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := testhelpers.SendJoin(conn, pad, username); err != nil {
		t.Fatalf("Failed to send join for %s: %v", username, err)
	}
	time.Sleep(50 * time.Millisecond)

	return conn
}
