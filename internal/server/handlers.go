// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/jobchat/internal/auth"
)

const (
	rejectMissingToken = "missing_token"
	rejectInvalidToken = "invalid_token"
	rejectOrigin       = "origin"
	rejectShutdown     = "shutdown"
)

// SocketHandler upgrades authenticated requests to WebSocket sessions.
type SocketHandler struct {
	hub      *Hub
	verifier auth.Verifier
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewSocketHandler wires the upgrade endpoint to a hub, a token verifier and
// an origin policy.
func NewSocketHandler(hub *Hub, verifier auth.Verifier, origins *OriginPolicy) *SocketHandler {
	h := &SocketHandler{
		hub:      hub,
		verifier: verifier,
		log:      hub.log.With().Str("component", "socket").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if origins.CheckOrigin(r) {
				return true
			}
			hub.metrics.upgradesRejected.WithLabelValues(rejectOrigin).Inc()
			return false
		},
	}
	return h
}

// ServeHTTP accepts GET upgrade requests carrying ?token=. The token is
// checked after the upgrade so that a rejected client sees close code 1008
// instead of a bare HTTP error; such a socket never reaches the registry.
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		h.reject(conn, r, rejectMissingToken, "missing token")
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		h.reject(conn, r, rejectInvalidToken, "invalid or expired token")
		return
	}

	if !h.hub.Running() {
		h.reject(conn, r, rejectShutdown, "server shutting down")
		return
	}

	h.hub.Register(NewClient(conn, h.hub, identity, r.RemoteAddr))
}

func (h *SocketHandler) reject(conn *websocket.Conn, r *http.Request, reason, text string) {
	h.hub.metrics.upgradesRejected.WithLabelValues(reason).Inc()
	h.log.Info().Str("remote_addr", r.RemoteAddr).Str("reason", reason).Msg("Rejected socket")

	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, text)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !isExpectedCloseError(err) {
		h.log.Warn().Err(err).Msg("Error writing close frame")
	}
	if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
		h.log.Warn().Err(err).Msg("Error closing rejected socket")
	}
}

// HealthHandler reports that the process is up.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "jobchat server is running")
}

// ReadyHandler reports 503 once the hub has stopped accepting sockets.
func ReadyHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusOK
		body := map[string]any{"status": "ready", "sessions": hub.SessionCount()}
		if !hub.Running() {
			status = http.StatusServiceUnavailable
			body["status"] = "stopping"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// TestPageHandler serves an HTML page for trying the socket by hand: paste a
// socket token, pick a receiver and send messages.
func TestPageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Error writing HTML response")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>jobchat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        input[type="number"] { width: 80px; padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>jobchat WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="tokenInput" placeholder="Socket token">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px">
        <input type="number" id="receiverInput" placeholder="To" min="1" disabled>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="events"></div>

    <script>
        let ws = null;
        const eventsDiv = document.getElementById('events');
        const tokenInput = document.getElementById('tokenInput');
        const receiverInput = document.getElementById('receiverInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function log(text, color) {
            const line = document.createElement('div');
            line.style.margin = '5px 0';
            line.style.color = color || 'gray';
            line.textContent = text;
            eventsDiv.appendChild(line);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            receiverInput.disabled = !connected;
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const url = scheme + location.host + '/ws?token=' + encodeURIComponent(tokenInput.value.trim());
            ws = new WebSocket(url);

            ws.onopen = function() {
                log('Connected');
                updateStatus(true);
            };
            ws.onmessage = function(event) {
                const frame = JSON.parse(event.data);
                const colors = { message: 'green', message_sent: 'blue', error: 'red', new_invitation: 'purple' };
                log(frame.type + ': ' + event.data, colors[frame.type]);
            };
            ws.onclose = function(event) {
                log('Connection closed (' + event.code + (event.reason ? ' ' + event.reason : '') + ')');
                updateStatus(false);
                ws = null;
            };
            ws.onerror = function() {
                log('Connection error', 'red');
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const content = messageInput.value.trim();
            const receiverId = parseInt(receiverInput.value, 10);
            if (content && receiverId && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ type: 'message', receiverId: receiverId, content: content }));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
