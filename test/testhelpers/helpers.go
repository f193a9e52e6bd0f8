// Package testhelpers provides common utilities for testing the pad relay server.
//
// It contains reusable helpers shared across unit and integration tests:
// creating test servers, allocating pads, dialing WebSocket connections,
// sending protocol events, and asserting on received frames.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is a decoded outbound wire frame as received by a client.
type Frame struct {
	Event string          `json:"event"`
	Msg   string          `json:"msg"`
	Code  json.RawMessage `json:"code"`
}

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// CreatePad allocates a new pad via the control endpoint and returns its ID.
func CreatePad(t *testing.T, baseURL string) string {
	t.Helper()

	resp := MakeRequest(t, http.MethodPost, baseURL+"/create_pad")
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Pad creation returned status %d", resp.StatusCode)
	}

	var body struct {
		PadID string `json:"padId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode pad creation response: %v", err)
	}
	if body.PadID == "" {
		t.Fatal("Pad creation response missing padId")
	}
	return body.PadID
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendJoin sends a join event for the given room and username.
func SendJoin(conn *websocket.Conn, room, username string) error {
	return conn.WriteJSON(map[string]string{
		"event":    "join",
		"room":     room,
		"username": username,
	})
}

// SendLeave sends an explicit leave event for the given room.
func SendLeave(conn *websocket.Conn, room string) error {
	return conn.WriteJSON(map[string]string{
		"event": "leave",
		"room":  room,
	})
}

// SendCodeChange sends a code-change event carrying content as the opaque payload.
func SendCodeChange(conn *websocket.Conn, room, content string) error {
	return conn.WriteJSON(map[string]any{
		"event": "code-change",
		"room":  room,
		"code":  content,
	})
}

// SendRawMessage sends a raw byte message over the WebSocket connection.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// ReceiveFrame reads one frame from the connection, failing the test on
// timeout or decode errors.
func ReceiveFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) Frame {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	return frame
}

// ExpectPresence reads one frame and asserts it is a presence message with
// the expected text.
func ExpectPresence(t *testing.T, conn *websocket.Conn, expectedMsg string) {
	t.Helper()

	frame := ReceiveFrame(t, conn, 2*time.Second)
	if frame.Event != "message" {
		t.Fatalf("Expected presence message, got %q frame", frame.Event)
	}
	if frame.Msg != expectedMsg {
		t.Errorf("Expected presence message %q, got %q", expectedMsg, frame.Msg)
	}
}

// ExpectCodeUpdate reads one frame and asserts it is a code-update carrying
// the expected content.
func ExpectCodeUpdate(t *testing.T, conn *websocket.Conn, expectedContent string) {
	t.Helper()

	frame := ReceiveFrame(t, conn, 2*time.Second)
	if frame.Event != "code-update" {
		t.Fatalf("Expected code-update, got %q frame", frame.Event)
	}

	var content string
	if err := json.Unmarshal(frame.Code, &content); err != nil {
		t.Fatalf("Failed to decode code payload: %v", err)
	}
	if content != expectedContent {
		t.Errorf("Expected code payload %q, got %q", expectedContent, content)
	}
}

// ExpectNoFrame asserts that no frame arrives on the connection within the
// given window.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("Expected no frame, but received one")
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of frame: %v", err)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}
