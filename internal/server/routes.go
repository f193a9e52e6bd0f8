// Package server wires HTTP handlers into a ServeMux for the pad relay
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check, WebSocket gateway, pad creation, the protected
// identity probe, and the test page. All dependencies are passed in
// explicitly; there is one wiring point and no handler is registered twice.
func SetupRoutes(hub *Hub, relay *Relay, registry *Registry, verifier TokenVerifier) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", NewWebSocketHandler(hub, relay))
	mux.HandleFunc("/create_pad", NewCreatePadHandler(registry))
	mux.HandleFunc("/protected", RequireAuth(verifier, NewProtectedHandler()))
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
