package ginserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"zedflip/internal/app/realtime"
	domainchat "zedflip/internal/domain/chat"
)

type testFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func socketURL(server *httptest.Server, token string) string {
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/socket"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(socketURL(server, token), nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// expect reads frames until one with event arrives.
func expect(t *testing.T, conn *websocket.Conn, event string) testFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame testFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if frame.Event == event {
			return frame
		}
	}
}

func waitForMembers(t *testing.T, reg *realtime.Registry, ch realtime.Channel, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(reg.Members(ch)) < n {
		if time.Now().After(deadline) {
			t.Fatalf("channel %s has %d members, want %d", ch, len(reg.Members(ch)), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSocketHandshakeRequiresValidToken(t *testing.T) {
	e := newTestEnv(t)
	server := httptest.NewServer(e.router)
	defer server.Close()

	for _, token := range []string{"", "not-a-jwt"} {
		_, resp, err := websocket.DefaultDialer.Dial(socketURL(server, token), nil)
		if err == nil {
			t.Fatalf("token %q: upgrade should be refused", token)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401, got %+v", token, resp)
		}
	}

	header := http.Header{"Authorization": []string{"Bearer " + e.tokens["alice"]}}
	conn, _, err := websocket.DefaultDialer.Dial(socketURL(server, ""), header)
	if err != nil {
		t.Fatalf("bearer header handshake: %v", err)
	}
	_ = conn.Close()
}

func TestSocketConversationProtocol(t *testing.T) {
	e := newTestEnv(t)
	id := e.startConversation(t)
	ch := realtime.ConversationChannel(domainchat.ConversationID(id))
	server := httptest.NewServer(e.router)
	defer server.Close()

	alice := dial(t, server, e.tokens["alice"])
	bob := dial(t, server, e.tokens["bob"])
	carol := dial(t, server, e.tokens["carol"])

	emit(t, carol, inboundJoin, map[string]string{"conversationId": id})
	frame := expect(t, carol, realtime.EventError)
	var failure realtime.ErrorPayload
	if err := json.Unmarshal(frame.Data, &failure); err != nil || failure.Message != "Conversation not found" {
		t.Fatalf("non-participant join: %s", frame.Data)
	}

	emit(t, alice, inboundJoin, map[string]string{"conversationId": id})
	emit(t, bob, inboundJoin, map[string]string{"conversationId": id})
	waitForMembers(t, e.registry, ch, 2)

	emit(t, alice, inboundTyping, map[string]any{"conversationId": id, "isTyping": true})
	frame = expect(t, bob, realtime.EventUserTyping)
	var typing realtime.TypingPayload
	if err := json.Unmarshal(frame.Data, &typing); err != nil || typing.UserID != "alice" || !typing.IsTyping {
		t.Fatalf("typing frame: %s", frame.Data)
	}

	emit(t, alice, inboundSend, map[string]string{"conversationId": id, "content": "I can pick it up today"})
	own := expect(t, alice, realtime.EventNewMessage)
	got := expect(t, bob, realtime.EventNewMessage)
	var sent, received struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}
	_ = json.Unmarshal(own.Data, &sent)
	_ = json.Unmarshal(got.Data, &received)
	if sent.ID == "" || sent.ID != received.ID || received.Content != "I can pick it up today" {
		t.Fatalf("message frames differ: %s vs %s", own.Data, got.Data)
	}

	emit(t, alice, "dance", nil)
	frame = expect(t, alice, realtime.EventError)
	if err := json.Unmarshal(frame.Data, &failure); err != nil || failure.Message != "Unsupported event" {
		t.Fatalf("unknown event: %s", frame.Data)
	}
}
