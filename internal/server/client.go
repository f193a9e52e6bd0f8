// Package server manages individual WebSocket connections, handling read/write
// pumps, event decoding, rate limiting, and disconnect cleanup for each client.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents one WebSocket connection in the pad broker. It owns the
// connection's outbound queue, its display name, and the set of rooms the
// connection has actually joined; inbound events naming any other room are
// rejected without touching the registry.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	relay          *Relay
	addr           string
	closed         bool
	username       string
	joined         map[SessionID]struct{}
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a new Client for the provided WebSocket connection. The
// send channel is buffered so fan-out to this client never blocks the relay;
// when the buffer fills, the client is evicted instead.
func NewClient(conn *websocket.Conn, hub *Hub, relay *Relay, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)

	return &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		relay:          relay,
		addr:           addr,
		closed:         false,
		username:       "Guest",
		joined:         make(map[SessionID]struct{}),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
	}
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Username returns the display name supplied with the client's join event,
// or "Guest" when none was given.
func (c *Client) Username() string {
	return c.username
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Client %s disconnected: %v", c.addr, err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Client %s connection closed: %v", c.addr, err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		log.Printf("Unexpected WebSocket error from %s: %v", c.addr, err)
		return true
	}

	log.Printf("WebSocket read error from %s: %v", c.addr, err)
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the event should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		log.Printf("Rate limit exceeded for %s (%d events per %s); discarding event", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// sendError queues a rejection frame for this client. Failures to notify are
// ignored; rejection is best-effort and never affects other members.
func (c *Client) sendError(msg string) {
	payload, err := json.Marshal(ErrorMessage{Event: EventError, Msg: msg})
	if err != nil {
		log.Printf("Error encoding error frame for %s: %v", c.addr, err)
		return
	}
	c.hub.deliver(c, payload)
}

// processEvent decodes one inbound frame and dispatches it to the relay.
// Malformed or unauthorized frames are dropped with a diagnostic; they never
// disturb other connections or rooms.
func (c *Client) processEvent(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("Malformed frame from %s: %v", c.addr, err)
		c.sendError("malformed event")
		return
	}
	if env.Room == "" {
		log.Printf("Frame from %s missing room field; dropping %q event", c.addr, env.Event)
		c.sendError("missing room")
		return
	}

	switch env.Event {
	case EventJoin:
		c.handleJoin(env)
	case EventCodeChange:
		c.handleCodeChange(env)
	case EventLeave:
		c.handleLeave(env)
	default:
		log.Printf("Unknown event %q from %s; dropping", env.Event, c.addr)
		c.sendError("unknown event")
	}
}

func (c *Client) handleJoin(env Envelope) {
	room := SessionID(env.Room)
	if currentConfig().StrictRooms {
		parsed, err := ParseSessionID(env.Room)
		if err != nil {
			log.Printf("Rejected join from %s: %v", c.addr, err)
			c.sendError("unknown room")
			return
		}
		room = parsed
	}

	if env.Username != "" {
		c.username = env.Username
	}

	if err := c.relay.OnJoin(room, c); err != nil {
		log.Printf("Rejected join to room %s from %s: %v", room, c.addr, err)
		c.sendError("unknown room")
		return
	}
	c.joined[room] = struct{}{}
}

func (c *Client) handleCodeChange(env Envelope) {
	room := SessionID(env.Room)
	if _, ok := c.joined[room]; !ok {
		log.Printf("Unauthorized code-change for room %s from %s; dropping", room, c.addr)
		c.sendError("not a member of room")
		return
	}
	if len(env.Code) == 0 {
		log.Printf("code-change from %s missing code field; dropping", c.addr)
		c.sendError("missing code")
		return
	}

	if err := c.relay.OnContentChange(room, c, env.Code); err != nil {
		log.Printf("Dropped code-change for room %s from %s: %v", room, c.addr, err)
		c.sendError("event rejected")
	}
}

func (c *Client) handleLeave(env Envelope) {
	room := SessionID(env.Room)
	if _, ok := c.joined[room]; !ok {
		// Double-leave or leave-without-join is a no-op.
		return
	}
	delete(c.joined, room)
	c.relay.OnLeave(room, c)
}

// cleanupRooms synthesizes a leave for every room this connection had joined.
// It runs exactly once, when the read pump exits, so an abrupt disconnect can
// never strand a ghost member in the registry.
func (c *Client) cleanupRooms() {
	for room := range c.joined {
		delete(c.joined, room)
		c.relay.OnLeave(room, c)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.cleanupRooms()
		c.hub.evict(c)
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error closing connection in readPump: %v", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processEvent(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
	}
	return false
}

// writeTextMessage writes a single outbound frame to the connection. Frames
// are written one per WebSocket message so clients can decode them
// independently.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping message to %s: %v", c.addr, err)
		return false
	}
	return true
}
