// Package integration contains integration tests for the chat relay.
//
// These tests verify that the components work together by exercising a real
// HTTP server and real WebSocket connections end to end: join sequences,
// broadcast fan-out, history replay, and disconnect handling.
package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatrelay/internal/server"
)

const readTimeout = 2 * time.Second

// payload is the union of every server->client payload shape, decoded by type.
type payload struct {
	Type      string             `json:"type"`
	Content   string             `json:"content"`
	Username  string             `json:"username"`
	Timestamp string             `json:"timestamp"`
	Messages  []server.Message   `json:"messages"`
	Users     []server.UserEntry `json:"users"`
}

func configureServerForTest(t *testing.T, baseURL string, customize func(cfg *server.Config)) {
	t.Helper()
	cfg := server.NewConfig()
	cfg.AllowedOrigins = append([]string{baseURL}, cfg.AllowedOrigins...)
	if customize != nil {
		customize(cfg)
	}
	server.SetConfig(cfg)
	t.Cleanup(func() {
		server.SetConfig(nil)
	})
}

// startRelay boots a hub and an HTTP test server around it, registering
// cleanup in the right order (hub first, listener second). It returns the
// hub, the WebSocket URL, and the HTTP base URL used as the Origin header.
func startRelay(t *testing.T, history *server.HistoryBuffer, messages server.MessageStore) (*server.Hub, string, string) {
	t.Helper()

	hub := server.NewHub(history, messages)
	mux := server.SetupRoutes(hub)
	testServer := httptest.NewServer(mux)
	t.Cleanup(testServer.Close)

	go hub.Run()
	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
	})

	configureServerForTest(t, testServer.URL, nil)

	u, err := url.Parse(testServer.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	return hub, u.String(), testServer.URL
}

func newOriginHeader(origin string) http.Header {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return header
}

// dialUser opens a WebSocket connection declaring the given username.
func dialUser(t *testing.T, wsURL, origin, username string) *websocket.Conn {
	t.Helper()

	u, err := url.Parse(wsURL)
	if err != nil {
		t.Fatalf("Failed to parse WebSocket URL: %v", err)
	}
	q := u.Query()
	q.Set("username", username)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), newOriginHeader(origin))
	if err != nil {
		t.Fatalf("Failed to connect as %q: %v", username, err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readPayload reads and decodes the next server payload from conn.
func readPayload(t *testing.T, conn *websocket.Conn) payload {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read payload: %v", err)
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("Failed to decode payload %q: %v", raw, err)
	}
	return p
}

// expectHistory asserts the next payload is a history snapshot with the given
// message contents, oldest first.
func expectHistory(t *testing.T, conn *websocket.Conn, contents ...string) payload {
	t.Helper()

	p := readPayload(t, conn)
	if p.Type != server.TypeHistory {
		t.Fatalf("Expected history payload, got %q", p.Type)
	}
	if p.Messages == nil {
		t.Fatalf("History payload has null messages; expected an array")
	}
	if len(p.Messages) != len(contents) {
		t.Fatalf("Expected %d history messages, got %d", len(contents), len(p.Messages))
	}
	for i, want := range contents {
		if p.Messages[i].Content != want {
			t.Errorf("History message %d: expected content %q, got %q", i, want, p.Messages[i].Content)
		}
	}
	return p
}

// expectUsers asserts the next payload is a roster replacement containing
// exactly the given usernames.
func expectUsers(t *testing.T, conn *websocket.Conn, usernames ...string) {
	t.Helper()

	p := readPayload(t, conn)
	if p.Type != server.TypeUsers {
		t.Fatalf("Expected users payload, got %q", p.Type)
	}

	got := make([]string, 0, len(p.Users))
	for _, u := range p.Users {
		got = append(got, u.Username)
	}
	sort.Strings(got)

	want := append([]string(nil), usernames...)
	sort.Strings(want)

	if len(got) != len(want) {
		t.Fatalf("Expected roster %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected roster %v, got %v", want, got)
		}
	}
}

// expectMessage asserts the next payload is a broadcast chat message and
// returns it for further field checks.
func expectMessage(t *testing.T, conn *websocket.Conn, username, content string) payload {
	t.Helper()

	p := readPayload(t, conn)
	if p.Type != server.TypeMessage {
		t.Fatalf("Expected message payload, got %q", p.Type)
	}
	if p.Username != username {
		t.Errorf("Expected message from %q, got %q", username, p.Username)
	}
	if p.Content != content {
		t.Errorf("Expected content %q, got %q", content, p.Content)
	}
	return p
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame interface{}) {
	t.Helper()

	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("Failed to marshal frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("Failed to send frame: %v", err)
	}
}
