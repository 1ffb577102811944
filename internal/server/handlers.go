// Package server exposes HTTP handlers, including the WebSocket connection
// gateway, a health check, and the built-in chat test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler returns the connection gateway for the given hub. It
// upgrades GET requests to WebSocket, reads the self-declared username from
// the query string, and registers a new session; the hub takes over from
// there. An absent or empty username is accepted as-is.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		username := r.URL.Query().Get("username")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Errorf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, hub, username, r.RemoteAddr)

		// Hand the session to the hub; it launches the pump goroutines,
		// replays history, and announces the roster.
		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			_ = conn.Close()
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay is running!")
}

// TestPageHandler serves a minimal chat client for exercising the relay by
// hand. It renders the message list and roster, reconnects with a bounded
// retry count and fixed backoff, and re-requests history after reconnecting.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		logger.Errorf("Error writing test page: %v", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; display: flex; gap: 20px; }
        #chat { flex: 1; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #users { width: 180px; border: 1px solid #ccc; padding: 10px; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; cursor: pointer; }
        .meta { color: gray; font-size: 12px; }
    </style>
</head>
<body>
    <div id="chat">
        <h1>Chat Relay</h1>
        <div id="status" class="meta">Disconnected</div>
        <div id="messages"></div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>
    <div id="users"><h3>Online</h3><div id="userList"></div></div>

    <script>
        const maxRetries = 5;
        const retryInterval = 3000;
        let retries = 0;
        let ws = null;

        const username = prompt('Username?') || 'anonymous';
        const messagesDiv = document.getElementById('messages');
        const userListDiv = document.getElementById('userList');
        const statusDiv = document.getElementById('status');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');

        function addMessage(msg) {
            const el = document.createElement('div');
            el.innerHTML = '<strong>' + msg.username + ':</strong> ' + msg.content +
                ' <span class="meta">' + msg.timestamp + '</span>';
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function renderUsers(users) {
            userListDiv.innerHTML = '';
            users.forEach(function(u) {
                const el = document.createElement('div');
                el.textContent = u.username;
                userListDiv.appendChild(el);
            });
        }

        function connect() {
            ws = new WebSocket('ws://' + location.host + '/ws?username=' + encodeURIComponent(username));

            ws.onopen = function() {
                retries = 0;
                statusDiv.textContent = 'Connected as ' + username;
                messageInput.disabled = false;
                sendButton.disabled = false;
                ws.send(JSON.stringify({type: 'get_history', username: username}));
            };

            ws.onmessage = function(event) {
                const payload = JSON.parse(event.data);
                if (payload.type === 'history') {
                    messagesDiv.innerHTML = '';
                    payload.messages.forEach(addMessage);
                } else if (payload.type === 'message') {
                    addMessage(payload);
                } else if (payload.type === 'users') {
                    renderUsers(payload.users);
                }
            };

            ws.onclose = function() {
                statusDiv.textContent = 'Disconnected';
                messageInput.disabled = true;
                sendButton.disabled = true;
                if (retries < maxRetries) {
                    retries++;
                    statusDiv.textContent = 'Reconnecting (' + retries + '/' + maxRetries + ')...';
                    setTimeout(connect, retryInterval);
                }
            };
        }

        function sendMessage() {
            const content = messageInput.value.trim();
            if (content && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: 'message', content: content}));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); }
        });

        connect();
    </script>
</body>
</html>`
