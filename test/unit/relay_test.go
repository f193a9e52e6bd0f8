package unit

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rtpad/padserver/internal/server"
)

// startHub runs a hub for the duration of the test. Clients registered here
// are pumpless, so fan-out can be observed directly on their send channels.
func startHub(t *testing.T) *server.Hub {
	t.Helper()

	hub := server.NewHub()
	go hub.Run()
	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
	})
	return hub
}

func registerMember(t *testing.T, hub *server.Hub, relay *server.Relay, addr string) *server.Client {
	t.Helper()

	client := server.NewClient(nil, hub, relay, addr)
	select {
	case hub.GetRegisterChan() <- client:
	case <-time.After(time.Second):
		t.Fatal("Timed out registering client with hub")
	}
	// Give the hub loop a moment to record the registration.
	time.Sleep(10 * time.Millisecond)
	return client
}

func receiveFrame(t *testing.T, client *server.Client) map[string]any {
	t.Helper()

	select {
	case payload := <-client.GetSendChan():
		var frame map[string]any
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("Failed to decode frame: %v", err)
		}
		return frame
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for frame")
		return nil
	}
}

func expectNoFrame(t *testing.T, client *server.Client) {
	t.Helper()

	select {
	case payload := <-client.GetSendChan():
		t.Fatalf("Expected no frame, got %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestRelayJoinNotifiesOthersOnly verifies that a join is announced to every
// other member of the room and never to the joiner itself.
func TestRelayJoinNotifiesOthersOnly(t *testing.T) {
	hub := startHub(t)
	registry := server.NewRegistry(false)
	relay := server.NewRelay(registry, hub)
	room := server.NewSessionID()

	first := registerMember(t, hub, relay, "127.0.0.1:6000")
	second := registerMember(t, hub, relay, "127.0.0.1:6001")

	if err := relay.OnJoin(room, first); err != nil {
		t.Fatalf("First join failed: %v", err)
	}
	expectNoFrame(t, first)

	if err := relay.OnJoin(room, second); err != nil {
		t.Fatalf("Second join failed: %v", err)
	}

	frame := receiveFrame(t, first)
	if frame["event"] != "message" {
		t.Errorf("Expected presence message, got %v", frame["event"])
	}
	if frame["msg"] != "Guest has joined the room." {
		t.Errorf("Unexpected presence text: %v", frame["msg"])
	}
	expectNoFrame(t, second)
}

// TestRelayRejoinNotReannounced verifies that a duplicate join from the
// same connection neither duplicates membership nor repeats the presence
// announcement.
func TestRelayRejoinNotReannounced(t *testing.T) {
	hub := startHub(t)
	registry := server.NewRegistry(false)
	relay := server.NewRelay(registry, hub)
	room := server.NewSessionID()

	observer := registerMember(t, hub, relay, "127.0.0.1:6050")
	member := registerMember(t, hub, relay, "127.0.0.1:6051")
	if err := relay.OnJoin(room, observer); err != nil {
		t.Fatalf("Observer join failed: %v", err)
	}
	if err := relay.OnJoin(room, member); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	receiveFrame(t, observer)

	if err := relay.OnJoin(room, member); err != nil {
		t.Fatalf("Rejoin failed: %v", err)
	}
	expectNoFrame(t, observer)
	if got := registry.MemberCount(room); got != 2 {
		t.Errorf("Expected 2 members after rejoin, got %d", got)
	}
}

// TestRelayContentChangeFanOut verifies that a content change reaches every
// other member verbatim and is never echoed to the sender.
func TestRelayContentChangeFanOut(t *testing.T) {
	hub := startHub(t)
	registry := server.NewRegistry(false)
	relay := server.NewRelay(registry, hub)
	room := server.NewSessionID()

	sender := registerMember(t, hub, relay, "127.0.0.1:6100")
	receiverA := registerMember(t, hub, relay, "127.0.0.1:6101")
	receiverB := registerMember(t, hub, relay, "127.0.0.1:6102")
	for _, m := range []*server.Client{sender, receiverA, receiverB} {
		if err := relay.OnJoin(room, m); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}
	// Drain the presence frames produced by the joins.
	receiveFrame(t, sender)
	receiveFrame(t, sender)
	receiveFrame(t, receiverA)

	code := json.RawMessage(`"hello"`)
	if err := relay.OnContentChange(room, sender, code); err != nil {
		t.Fatalf("OnContentChange failed: %v", err)
	}

	for _, receiver := range []*server.Client{receiverA, receiverB} {
		frame := receiveFrame(t, receiver)
		if frame["event"] != "code-update" {
			t.Errorf("Expected code-update, got %v", frame["event"])
		}
		if frame["code"] != "hello" {
			t.Errorf("Expected payload %q, got %v", "hello", frame["code"])
		}
	}
	expectNoFrame(t, sender)
}

// TestRelayRejectsNonMemberSender verifies that a content change claiming a
// room the sender never joined is rejected, not relayed.
func TestRelayRejectsNonMemberSender(t *testing.T) {
	hub := startHub(t)
	registry := server.NewRegistry(false)
	relay := server.NewRelay(registry, hub)
	room := server.NewSessionID()

	member := registerMember(t, hub, relay, "127.0.0.1:6200")
	outsider := registerMember(t, hub, relay, "127.0.0.1:6201")
	if err := relay.OnJoin(room, member); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	err := relay.OnContentChange(room, outsider, json.RawMessage(`"spoofed"`))
	if !errors.Is(err, server.ErrNotMember) {
		t.Fatalf("Expected ErrNotMember, got %v", err)
	}
	expectNoFrame(t, member)
}

// TestRelayLeaveAnnouncement verifies that leaving broadcasts to the
// remaining members and that a double leave is silent.
func TestRelayLeaveAnnouncement(t *testing.T) {
	hub := startHub(t)
	registry := server.NewRegistry(false)
	relay := server.NewRelay(registry, hub)
	room := server.NewSessionID()

	leaver := registerMember(t, hub, relay, "127.0.0.1:6300")
	remainer := registerMember(t, hub, relay, "127.0.0.1:6301")
	for _, m := range []*server.Client{leaver, remainer} {
		if err := relay.OnJoin(room, m); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}
	receiveFrame(t, leaver)

	relay.OnLeave(room, leaver)
	frame := receiveFrame(t, remainer)
	if frame["msg"] != "Guest has left the room." {
		t.Errorf("Unexpected leave text: %v", frame["msg"])
	}

	relay.OnLeave(room, leaver)
	expectNoFrame(t, remainer)

	if registry.IsMember(room, leaver) {
		t.Error("Leaver still registered after leave")
	}
	if !registry.IsMember(room, remainer) {
		t.Error("Remaining member lost registration")
	}
}

// TestRelaySlowMemberEvicted verifies that a member whose outbound queue
// overflows is dropped from the hub while the rest of the room keeps
// receiving traffic.
func TestRelaySlowMemberEvicted(t *testing.T) {
	hub := startHub(t)
	registry := server.NewRegistry(false)
	relay := server.NewRelay(registry, hub)
	room := server.NewSessionID()

	slow := registerMember(t, hub, relay, "127.0.0.1:6350")
	healthy := registerMember(t, hub, relay, "127.0.0.1:6351")
	sender := registerMember(t, hub, relay, "127.0.0.1:6352")
	for _, m := range []*server.Client{slow, healthy, sender} {
		if err := relay.OnJoin(room, m); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}

	// Nobody drains slow, so the join presence frames plus this burst
	// overflow its queue. The healthy member ends the burst exactly at
	// capacity and is drained below.
	for i := 0; i < 255; i++ {
		if err := relay.OnContentChange(room, sender, json.RawMessage(`"burst"`)); err != nil {
			t.Fatalf("OnContentChange %d failed: %v", i, err)
		}
	}

	deadline := time.After(2 * time.Second)
drain:
	for {
		select {
		case _, ok := <-slow.GetSendChan():
			if !ok {
				break drain
			}
		case <-deadline:
			t.Fatal("Slow member's send channel never closed")
		}
	}

	for i := 0; i < 256; i++ {
		receiveFrame(t, healthy)
	}
	if err := relay.OnContentChange(room, sender, json.RawMessage(`"after"`)); err != nil {
		t.Fatalf("OnContentChange after eviction failed: %v", err)
	}
	frame := receiveFrame(t, healthy)
	if frame["event"] != "code-update" || frame["code"] != "after" {
		t.Errorf("Healthy member missed traffic after eviction: %v", frame)
	}
}

// TestRelayRoomIsolation verifies that events in one room are never
// observed by members exclusively of another room.
func TestRelayRoomIsolation(t *testing.T) {
	hub := startHub(t)
	registry := server.NewRegistry(false)
	relay := server.NewRelay(registry, hub)

	roomA := server.NewSessionID()
	roomB := server.NewSessionID()

	memberA1 := registerMember(t, hub, relay, "127.0.0.1:6400")
	memberA2 := registerMember(t, hub, relay, "127.0.0.1:6401")
	memberB := registerMember(t, hub, relay, "127.0.0.1:6402")

	for _, m := range []*server.Client{memberA1, memberA2} {
		if err := relay.OnJoin(roomA, m); err != nil {
			t.Fatalf("Join to room A failed: %v", err)
		}
	}
	if err := relay.OnJoin(roomB, memberB); err != nil {
		t.Fatalf("Join to room B failed: %v", err)
	}
	receiveFrame(t, memberA1)

	if err := relay.OnContentChange(roomA, memberA1, json.RawMessage(`"only for A"`)); err != nil {
		t.Fatalf("OnContentChange failed: %v", err)
	}

	receiveFrame(t, memberA2)
	expectNoFrame(t, memberB)
}
