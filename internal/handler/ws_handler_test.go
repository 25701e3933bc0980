package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatwire/internal/app/chat"
	"chatwire/internal/pkg/auth/jwt"
)

func newWsTestServer(t *testing.T) (*httptest.Server, *AppDeps) {
	t.Helper()

	deps, _ := newTestDeps()
	srv := httptest.NewServer(Router(deps))
	t.Cleanup(srv.Close)

	return srv, deps
}

func wsURL(srv *httptest.Server, token string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func identityToken(t *testing.T, id, username string) string {
	t.Helper()

	token, err := jwt.GenerateToken(&jwt.Payload{ID: id, Username: username}, testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func dialChat(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

// readEvent reads the next frame with a deadline and decodes the envelope.
func readEvent(t *testing.T, conn *websocket.Conn) chat.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}

	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}

	var env chat.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("invalid frame %q: %v", frame, err)
	}
	return env
}

// waitForRoster reads frames until an "online users" roster with the wanted size arrives.
func waitForRoster(t *testing.T, conn *websocket.Conn, size int) []chat.RosterEntry {
	t.Helper()

	for i := 0; i < 10; i++ {
		env := readEvent(t, conn)
		if env.Type != chat.EventOnlineUsers {
			continue
		}

		var roster []chat.RosterEntry
		if err := json.Unmarshal(env.Payload, &roster); err != nil {
			t.Fatalf("invalid roster payload: %v", err)
		}
		if len(roster) == size {
			return roster
		}
	}

	t.Fatalf("no roster of size %d arrived", size)
	return nil
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType chat.EventType, payload any) {
	t.Helper()

	frame, err := chat.NewEvent(eventType, payload)
	if err != nil {
		t.Fatalf("building frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	srv, deps := newWsTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	if err == nil {
		t.Fatal("handshake without token must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %+v, want HTTP 401", resp)
	}

	if len(deps.Registry.Snapshot()) != 0 {
		t.Error("rejected handshake left a presence entry behind")
	}
}

func TestWebSocketRejectsInvalidToken(t *testing.T) {
	srv, deps := newWsTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "not.a.token"), nil)
	if err == nil {
		t.Fatal("handshake with a bogus token must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %+v, want HTTP 401", resp)
	}

	if len(deps.Registry.Snapshot()) != 0 {
		t.Error("rejected handshake left a presence entry behind")
	}
}

func TestWebSocketAcceptsAuthorizationHeader(t *testing.T) {
	srv, _ := newWsTestServer(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+identityToken(t, "a", "alice"))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	if err != nil {
		t.Fatalf("dial with Authorization header: %v", err)
	}
	defer conn.Close()

	waitForRoster(t, conn, 1)
}

func TestWebSocketChatScenario(t *testing.T) {
	srv, _ := newWsTestServer(t)

	connA := dialChat(t, srv, identityToken(t, "a", "alice"))
	waitForRoster(t, connA, 1)

	connB := dialChat(t, srv, identityToken(t, "b", "bob"))
	waitForRoster(t, connB, 2)
	waitForRoster(t, connA, 2)

	// Public message from A reaches B, attributed to A's bound identity.
	sendEvent(t, connA, chat.EventPublicMessage, chat.PublicMessagePayload{Text: "hello room"})

	env := readEvent(t, connB)
	if env.Type != chat.EventChatMessage {
		t.Fatalf("B got %q, want %q", env.Type, chat.EventChatMessage)
	}

	var broadcast chat.ChatMessage
	if err := json.Unmarshal(env.Payload, &broadcast); err != nil {
		t.Fatalf("invalid chat message payload: %v", err)
	}
	if broadcast.SenderID != "a" || broadcast.Username != "alice" || broadcast.Text != "hello room" {
		t.Errorf("broadcast = %+v", broadcast)
	}

	// Private message from A: echoed to A, delivered to B. A's next frame being
	// the private echo also proves the public message was not reflected to A.
	sendEvent(t, connA, chat.EventPrivateMessage, chat.PrivateMessagePayload{To: "b", Message: "psst"})

	for name, conn := range map[string]*websocket.Conn{"A": connA, "B": connB} {
		env := readEvent(t, conn)
		if env.Type != chat.EventPrivateMessage {
			t.Fatalf("%s got %q, want %q", name, env.Type, chat.EventPrivateMessage)
		}

		var direct chat.PrivateMessage
		if err := json.Unmarshal(env.Payload, &direct); err != nil {
			t.Fatalf("invalid private message payload: %v", err)
		}
		if direct.From != "a" || direct.To != "b" || direct.Message != "psst" {
			t.Errorf("%s saw %+v", name, direct)
		}
	}

	// B leaves; A sees the shrunken roster.
	connB.Close()
	roster := waitForRoster(t, connA, 1)
	if roster[0].ID != "a" {
		t.Errorf("roster after B left = %+v, want only alice", roster)
	}
}

func TestWebSocketMalformedFramesAreDropped(t *testing.T) {
	srv, _ := newWsTestServer(t)

	connA := dialChat(t, srv, identityToken(t, "a", "alice"))
	waitForRoster(t, connA, 1)

	connB := dialChat(t, srv, identityToken(t, "b", "bob"))
	waitForRoster(t, connB, 2)
	waitForRoster(t, connA, 2)

	// Garbage and incomplete events are absorbed silently.
	if err := connA.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	sendEvent(t, connA, chat.EventPrivateMessage, chat.PrivateMessagePayload{Message: "no recipient"})

	// A valid message sent afterwards still arrives, and arrives first on B:
	// inbound frames are processed in order, so the dropped ones never surface.
	sendEvent(t, connA, chat.EventPublicMessage, chat.PublicMessagePayload{Text: "still here"})

	env := readEvent(t, connB)
	if env.Type != chat.EventChatMessage {
		t.Fatalf("B got %q, want %q", env.Type, chat.EventChatMessage)
	}

	var broadcast chat.ChatMessage
	if err := json.Unmarshal(env.Payload, &broadcast); err != nil {
		t.Fatalf("invalid chat message payload: %v", err)
	}
	if broadcast.Text != "still here" {
		t.Errorf("text = %q, want %q", broadcast.Text, "still here")
	}
}

func TestWebSocketDuplicateSessionReplacesOld(t *testing.T) {
	srv, deps := newWsTestServer(t)

	token := identityToken(t, "a", "alice")

	oldConn := dialChat(t, srv, token)
	waitForRoster(t, oldConn, 1)

	newConn := dialChat(t, srv, token)
	waitForRoster(t, newConn, 1)

	// The old connection receives the session-replaced close code.
	if err := oldConn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	for {
		_, _, err := oldConn.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, chat.WsCloseCodeSessionReplaced) {
			t.Fatalf("old connection closed with %v, want close code %d", err, chat.WsCloseCodeSessionReplaced)
		}
		break
	}

	// Presence still shows exactly one alice, bound to the new connection.
	roster := deps.Registry.Snapshot()
	if len(roster) != 1 || roster[0].ID != "a" {
		t.Fatalf("roster = %+v, want single alice", roster)
	}

	// The replacement connection still works.
	sendEvent(t, newConn, chat.EventPrivateMessage, chat.PrivateMessagePayload{To: "a", Message: "self check"})
	env := readEvent(t, newConn)
	if env.Type != chat.EventPrivateMessage {
		t.Errorf("replacement got %q, want %q", env.Type, chat.EventPrivateMessage)
	}
}
