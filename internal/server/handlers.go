// Package server exposes HTTP handlers: the WebSocket gateway, pad creation,
// the protected identity probe, health checks, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// NewWebSocketHandler returns the handler that upgrades client connections
// and hands them to the hub. It validates that the request uses the GET
// method, upgrades the connection, and registers a new Client; the hub
// launches the read/write pumps.
func NewWebSocketHandler(hub *Hub, relay *Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, hub, relay, r.RemoteAddr)
		hub.register <- client
	}
}

// NewCreatePadHandler returns the handler that allocates a new pad. It
// generates a fresh session ID, registers it with the registry so strict
// mode recognizes it, and responds with {"padId": "<id>"}.
func NewCreatePadHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed. Pad creation only accepts POST requests.", http.StatusMethodNotAllowed)
			return
		}

		id := allocateSessionID(w)
		if id == "" {
			return
		}
		registry.Create(id)

		log.Printf("Allocated pad %s", id)
		writeJSON(w, http.StatusOK, map[string]SessionID{"padId": id})
	}
}

// allocateSessionID wraps allocation so an entropy failure becomes a service
// error for this request instead of crashing the relay for every room.
func allocateSessionID(w http.ResponseWriter) (id SessionID) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Session allocation failed: %v", r)
			writeJSONError(w, http.StatusInternalServerError, "pad creation unavailable")
			id = ""
		}
	}()
	return NewSessionID()
}

// NewProtectedHandler returns the identity probe: it greets the verified
// identity behind the request's bearer credential. Wrap it with RequireAuth.
func NewProtectedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())
		if identity == nil {
			writeJSONError(w, http.StatusForbidden, "Unauthorized")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Welcome %s", identity.Name)})
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Pad relay server is running!")
}

// TestPageHandler serves an HTML test page for exercising the pad protocol.
// It creates a pad, joins it, and broadcasts editor changes over the
// WebSocket endpoint.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Pad Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #editor { width: 100%; height: 200px; }
        #messages {
            border: 1px solid #ccc;
            height: 150px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; cursor: pointer; }
    </style>
</head>
<body>
    <h1>Pad Relay Test</h1>
    <div>
        <input type="text" id="usernameInput" placeholder="Username" value="Guest">
        <input type="text" id="roomInput" placeholder="Pad ID" size="40">
        <button onclick="createPad()">Create pad</button>
        <button onclick="joinPad()">Join</button>
    </div>
    <div id="messages"></div>
    <textarea id="editor" placeholder="Start typing once joined..." disabled></textarea>

    <script>
        let ws = null;
        let room = null;
        const messagesDiv = document.getElementById('messages');
        const editor = document.getElementById('editor');

        function addMessage(text) {
            const el = document.createElement('div');
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function createPad() {
            fetch('/create_pad', { method: 'POST' })
                .then(resp => resp.json())
                .then(body => {
                    document.getElementById('roomInput').value = body.padId;
                    addMessage('Created pad ' + body.padId);
                });
        }

        function joinPad() {
            room = document.getElementById('roomInput').value.trim();
            const username = document.getElementById('usernameInput').value.trim() || 'Guest';
            if (!room) { addMessage('Enter a pad ID first.'); return; }

            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = function() {
                ws.send(JSON.stringify({ event: 'join', room: room, username: username }));
                editor.disabled = false;
                addMessage('Joined pad ' + room);
            };
            ws.onmessage = function(e) {
                const frame = JSON.parse(e.data);
                if (frame.event === 'code-update') {
                    editor.value = frame.code;
                } else {
                    addMessage(frame.msg);
                }
            };
            ws.onclose = function() {
                editor.disabled = true;
                addMessage('Connection closed');
            };
        }

        editor.addEventListener('input', function() {
            if (ws && ws.readyState === WebSocket.OPEN && room) {
                ws.send(JSON.stringify({ event: 'code-change', room: room, code: editor.value }));
            }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
