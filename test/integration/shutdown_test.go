package integration

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/server"
)

// TestHTTPServerShutdown verifies ShutdownServer stops a running server
// within the timeout.
func TestHTTPServerShutdown(t *testing.T) {
	hub := server.NewHub(server.NewHistoryBuffer(100), nil)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	mux := server.SetupRoutes(hub)
	testServer := httptest.NewUnstartedServer(mux)
	testServer.Config = server.CreateServer(":0", mux)
	testServer.Start()
	t.Cleanup(testServer.Close)
	configureServerForTest(t, testServer.URL, nil)

	resp, err := http.Get(testServer.URL + "/")
	if err != nil {
		t.Fatalf("Server not reachable before shutdown: %v", err)
	}
	_ = resp.Body.Close()

	if err := server.ShutdownServer(testServer.Config, 2*time.Second); err != nil {
		t.Fatalf("ShutdownServer returned error: %v", err)
	}
}

// TestHubShutdownWithConnectedClients verifies the hub drains its pump and
// persistence goroutines and closes live connections on shutdown.
func TestHubShutdownWithConnectedClients(t *testing.T) {
	hub, wsURL, origin := startRelay(t, server.NewHistoryBuffer(100), nil)

	alice := dialUser(t, wsURL, origin, "alice")
	expectHistory(t, alice)
	expectUsers(t, alice, "alice")

	bob := dialUser(t, wsURL, origin, "bob")
	expectHistory(t, bob)
	expectUsers(t, bob, "alice", "bob")

	start := time.Now()
	if err := hub.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Hub shutdown returned error: %v", err)
	}
	// The pumps must be woken and drained, not abandoned until the timeout.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Hub shutdown took %v; expected pumps to drain promptly", elapsed)
	}

	// The server side closed the connections; reads should now fail.
	if err := alice.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	for {
		if _, _, err := alice.ReadMessage(); err != nil {
			break
		}
	}
}
