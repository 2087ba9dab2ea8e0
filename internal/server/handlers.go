// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test console.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades GET requests to WebSocket connections and
// registers them with hub. When verifier is non-nil the request must carry a
// valid login token in the "token" query parameter.
func WebSocketHandler(hub *Hub, verifier *auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		var subject string
		if verifier != nil {
			claims, err := verifier.Verify(r.URL.Query().Get("token"))
			if err != nil {
				hub.log.Warn("Rejected WebSocket login", "addr", r.RemoteAddr, "error", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			subject = claims.Subject
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr, subject)
		if !hub.Register(client) {
			refuseConnection(hub, conn, r.RemoteAddr)
		}
	}
}

// refuseConnection closes an upgraded connection the hub would not take.
func refuseConnection(hub *Hub, conn *websocket.Conn, addr string) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		hub.log.Debug("Could not send close frame", "addr", addr, "error", err)
	}
	if err := conn.Close(); err != nil {
		hub.log.Debug("Could not close refused connection", "addr", addr, "error", err)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "roomchat is running with %d connections", hub.ClientCount())
	}
}

// TestPageHandler serves a small console for exercising the protocol by hand.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPage)
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>roomchat console</title>
    <style>
        body { font-family: monospace; margin: 20px; }
        #log { border: 1px solid #ccc; height: 320px; padding: 8px; overflow-y: scroll; background: #f9f9f9; }
        input { width: 420px; padding: 4px; }
    </style>
</head>
<body>
    <h1>roomchat console</h1>
    <div>
        <input id="frame" value='{"type":"account:create","nickname":"guest","avatar":""}'>
        <button onclick="send()">Send</button>
        <button onclick="connect()">Connect</button>
    </div>
    <pre id="log"></pre>
    <script>
        let ws = null;
        const log = document.getElementById('log');
        function write(line) { log.textContent += line + '\n'; log.scrollTop = log.scrollHeight; }
        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws' + location.search);
            ws.onopen = () => write('* connected');
            ws.onclose = () => write('* closed');
            ws.onmessage = (event) => event.data.split('\n').forEach((line) => write('< ' + line));
        }
        function send() {
            const frame = document.getElementById('frame').value;
            if (ws && ws.readyState === WebSocket.OPEN) { ws.send(frame); write('> ' + frame); }
        }
    </script>
</body>
</html>`
