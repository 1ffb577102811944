// Package server coordinates session registration, message broadcast, and
// connection cleanup for the chat relay via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/Tyrowin/chatrelay/internal/logging"
)

var logger = logging.New()

// Timestamps use the ISO-8601 millisecond form so persisted and relayed
// messages compare lexicographically in chronological order.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

const persistTimeout = 5 * time.Second

// postRequest carries an accepted "message" frame from a client's read pump
// into the hub loop, where the server-authoritative fields are assigned.
type postRequest struct {
	session *Client
	content string
}

// Hub owns every piece of shared chat state: the session registry, the
// history buffer, and the fan-out path to connected clients. All mutations
// are serialized through the Run event loop so concurrent joins, leaves, and
// posts can never tear the roster or reorder the history.
type Hub struct {
	sessions   map[string]*Client
	history    *HistoryBuffer
	store      MessageStore
	register   chan *Client
	unregister chan *Client
	post       chan postRequest
	getHistory chan *Client
	lastStamp  time.Time
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub around the given history buffer. store may be nil, in
// which case messages live only in memory. The returned Hub is ready to
// manage connections once Run is started in its own goroutine.
func NewHub(history *HistoryBuffer, store MessageStore) *Hub {
	if history == nil {
		history = NewHistoryBuffer(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[string]*Client),
		history:    history,
		store:      store,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		post:       make(chan postRequest),
		getHistory: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// History exposes the hub's history buffer, primarily for startup preloading.
func (h *Hub) History() *HistoryBuffer {
	return h.history
}

// Run starts the hub's main event loop, handling session lifecycle, message
// posts, and history requests. This method should be called in a separate
// goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				logger.Warnf("Received nil client registration; skipping")
				continue
			}
			h.addSession(client)

		case client := <-h.unregister:
			h.removeSession(client)

		case req := <-h.post:
			h.handlePost(req)

		case client := <-h.getHistory:
			h.handleHistoryRequest(client)
		}
	}
}

// addSession registers the client, starts its pumps, replays the history
// snapshot to it, and announces the new roster to everyone.
func (h *Hub) addSession(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.sessions[client.sessionID] = client
	count := len(h.sessions)
	h.mutex.Unlock()
	logger.Infof("%q connected from %s (session %s). Total clients: %d",
		client.username, client.addr, client.sessionID, count)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	h.sendHistorySnapshot(client)
	h.broadcastRoster()
}

// removeSession deregisters the client and rebroadcasts the roster. Unknown
// sessions are a no-op so close and error events can both funnel here.
func (h *Hub) removeSession(client *Client) {
	h.mutex.Lock()
	if _, ok := h.sessions[client.sessionID]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.sessions, client.sessionID)
	client.closed = true
	count := len(h.sessions)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	logger.Infof("%q disconnected (session %s). Total clients: %d",
		client.username, client.sessionID, count)

	h.broadcastRoster()
}

// handlePost assigns the server-authoritative username and timestamp, appends
// the message to history, hands it to the durable store, and fans it out to
// every connected client, the sender included.
func (h *Hub) handlePost(req postRequest) {
	h.mutex.RLock()
	_, registered := h.sessions[req.session.sessionID]
	h.mutex.RUnlock()
	if !registered {
		// The session was deregistered while the frame was in flight.
		return
	}

	now := time.Now().UTC()
	// Timestamps must stay non-decreasing in insertion order, including
	// across the preload boundary: the first live post must not sort before
	// a history tail restored from the durable store.
	if h.lastStamp.IsZero() {
		if ts := h.history.lastTimestamp(); ts != "" {
			if tail, err := time.Parse(timestampLayout, ts); err == nil {
				h.lastStamp = tail
			}
		}
	}
	if now.Before(h.lastStamp) {
		now = h.lastStamp
	}
	h.lastStamp = now

	msg := Message{
		Type:      TypeMessage,
		Content:   req.content,
		Username:  req.session.username,
		Timestamp: now.Format(timestampLayout),
	}

	h.history.Append(msg)
	h.persistAsync(msg)

	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("Error marshaling message from %q: %v", msg.Username, err)
		return
	}
	h.broadcastToAll(payload)
}

// persistAsync forwards the message to the durable store in a detached
// goroutine. Store latency or failure never stalls the broadcast path.
func (h *Hub) persistAsync(msg Message) {
	if h.store == nil {
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := h.store.SaveMessage(ctx, msg); err != nil {
			logger.Errorf("Failed to persist message from %q: %v", msg.Username, err)
		}
	}()
}

// handleHistoryRequest sends the current history snapshot to one client.
func (h *Hub) handleHistoryRequest(client *Client) {
	h.sendHistorySnapshot(client)
}

func (h *Hub) sendHistorySnapshot(client *Client) {
	payload, err := json.Marshal(HistoryPayload{
		Type:     TypeHistory,
		Messages: h.history.Snapshot(),
	})
	if err != nil {
		logger.Errorf("Error marshaling history snapshot: %v", err)
		return
	}
	h.safeSend(client, payload)
}

// ListUsernames returns the usernames of all live sessions, sorted for
// deterministic roster payloads. Duplicate usernames appear once per session.
func (h *Hub) ListUsernames() []string {
	h.mutex.RLock()
	usernames := make([]string, 0, len(h.sessions))
	for _, client := range h.sessions {
		usernames = append(usernames, client.username)
	}
	h.mutex.RUnlock()

	sort.Strings(usernames)
	return usernames
}

// broadcastRoster sends the full roster replacement to every client.
func (h *Hub) broadcastRoster() {
	usernames := h.ListUsernames()
	users := make([]UserEntry, 0, len(usernames))
	for _, username := range usernames {
		users = append(users, UserEntry{Username: username})
	}

	payload, err := json.Marshal(RosterPayload{Type: TypeUsers, Users: users})
	if err != nil {
		logger.Errorf("Error marshaling roster: %v", err)
		return
	}
	h.broadcastToAll(payload)
}

// SendTo delivers payload to exactly one session. A stale or unknown session
// id means the recipient is gone; it is skipped and false returned.
func (h *Hub) SendTo(sessionID string, payload []byte) bool {
	h.mutex.RLock()
	client, ok := h.sessions[sessionID]
	h.mutex.RUnlock()
	if !ok {
		return false
	}
	return h.safeSend(client, payload)
}

// broadcastToAll delivers payload to every registered session. Delivery is
// best-effort: a client whose send buffer is full is treated as dead and
// removed, which in turn triggers a roster rebroadcast.
func (h *Hub) broadcastToAll(payload []byte) {
	clients := h.getSessionSnapshot()

	var failed []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}

	h.removeFailedClients(failed)
}

// getSessionSnapshot returns a thread-safe snapshot of all current sessions.
func (h *Hub) getSessionSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.sessions))
	for _, client := range h.sessions {
		clients = append(clients, client)
	}
	return clients
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send so the session cannot be closed
	// out from under us.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	current, exists := h.sessions[client.sessionID]
	if !exists || current != client || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// removeFailedClients drops sessions whose transport could not accept a
// payload and announces the shrunken roster. Each removal strictly shrinks
// the registry, so the recursion through broadcastRoster terminates.
func (h *Hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range failed {
		if _, exists := h.sessions[client.sessionID]; exists {
			delete(h.sessions, client.sessionID)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			logger.Warnf("Dropping %q (session %s): send buffer full", client.username, client.sessionID)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}

	if len(channelsToClose) > 0 {
		h.broadcastRoster()
	}
}

// shutdownClients deregisters every session and closes its send channel and
// connection. Closing the send channels wakes the write pumps so Shutdown can
// drain them; closing the connections unblocks the read pumps. The read pumps
// cannot deregister themselves here because the event loop is exiting.
func (h *Hub) shutdownClients() {
	logger.Infof("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.sessions))
	channelsToClose := make([]chan []byte, 0, len(h.sessions))
	for id, client := range h.sessions {
		delete(h.sessions, id)
		client.closed = true
		clients = append(clients, client)
		channelsToClose = append(channelsToClose, client.send)
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					logger.Errorf("Error closing connection for %q: %v", client.username, err)
				}
			}
		}
	}

	logger.Infof("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all pump and
// persistence goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	logger.Infof("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to drain.
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Infof("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		logger.Warnf("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
