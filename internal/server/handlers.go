// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, room listing, and the built-in test page.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the HTTP connection, and hands the
// new client to the hub, which runs the dispatcher for it.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, r.RemoteAddr, s.cfg.MaxFrameSize, s.log)
	if !s.hub.Serve(client, func(ctx context.Context, c *Client) {
		s.dispatcher.Serve(ctx, c)
	}) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat server is running!")
}

type roomSummary struct {
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Members   int       `json:"members"`
}

// RoomsHandler lists every room with its member count as JSON.
func (s *Server) RoomsHandler(w http.ResponseWriter, _ *http.Request) {
	rooms := lo.Map(s.engine.Directory.Rooms(), func(info chat.RoomInfo, _ int) roomSummary {
		return roomSummary{
			Name:      info.Name,
			CreatedBy: info.CreatedBy,
			CreatedAt: info.CreatedAt,
			Members:   len(info.Members),
		}
	})
	writeJSON(w, http.StatusOK, rooms, s.log)
}

func writeJSON(w http.ResponseWriter, status int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("Error writing JSON response", "error", err)
	}
}

// TestPageHandler serves an HTML test page for the WebSocket protocol. It
// connects to /ws on the same host and sends raw JSON frames.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPage)
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Room Chat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #frames {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        input[type="text"] { width: 160px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Room Chat WebSocket Test</h1>
    <div id="status" class="status disconnected">Disconnected</div>
    <div>
        <input type="text" id="username" placeholder="username">
        <button onclick="connect()">Connect</button>
    </div>
    <div>
        <input type="text" id="room" placeholder="room">
        <button onclick="send({type: 'create_room', name: room()})">Create</button>
        <button onclick="send({type: 'join_room', name: room()})">Join</button>
        <button onclick="send({type: 'leave_room', name: room()})">Leave</button>
        <button onclick="send({type: 'history', name: room()})">History</button>
        <button onclick="send({type: 'list_rooms'})">Rooms</button>
        <button onclick="send({type: 'list_users', name: room()})">Users</button>
    </div>
    <div>
        <input type="text" id="content" placeholder="message">
        <button onclick="send({type: 'message', room: room(), content: document.getElementById('content').value})">Send</button>
    </div>
    <div id="frames"></div>
    <script>
        let ws = null;
        const frames = document.getElementById('frames');
        const statusDiv = document.getElementById('status');

        function room() { return document.getElementById('room').value; }

        function log(text, color) {
            const el = document.createElement('div');
            el.style.color = color;
            el.textContent = text;
            frames.appendChild(el);
            frames.scrollTop = frames.scrollHeight;
        }

        function setStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
        }

        function connect() {
            if (ws) { ws.close(); }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = function() {
                setStatus(true);
                send({type: 'register', username: document.getElementById('username').value});
            };
            ws.onmessage = function(event) { log('< ' + event.data, 'green'); };
            ws.onclose = function() { setStatus(false); log('connection closed', 'gray'); ws = null; };
            ws.onerror = function() { log('connection error', 'red'); };
        }

        function send(frame) {
            if (!ws || ws.readyState !== WebSocket.OPEN) { return; }
            const text = JSON.stringify(frame);
            ws.send(text);
            log('> ' + text, 'blue');
        }
    </script>
</body>
</html>`
