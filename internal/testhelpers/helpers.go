// Package testhelpers provides utilities shared by the relay's HTTP and
// WebSocket tests: request helpers and a client connection that speaks the
// JSON event protocol.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// TestOrigin is the Origin header sent by ConnectWebSocket. The default
// configuration allows it.
const TestOrigin = "http://localhost:8908"

// DefaultTimeout bounds every receive in the helpers below.
const DefaultTimeout = 2 * time.Second

// MakeRequest executes an HTTP request with a 5-second timeout and fails the
// test if it cannot be made.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// WebSocketURL turns an httptest server URL into the ws:// URL of path.
func WebSocketURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// Conn is a test client. Frames may batch several payloads separated by
// newlines; Conn hands them out one at a time.
type Conn struct {
	*websocket.Conn
	pending []chat.Payload
}

// ConnectWebSocket dials url with the given Origin header. The handshake
// response is returned so callers can inspect refusals.
func ConnectWebSocket(url, origin string) (*Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, resp, err
	}
	return &Conn{Conn: conn}, resp, nil
}

// MustConnect dials url from TestOrigin and closes the connection when the
// test ends.
func MustConnect(t *testing.T, url string) *Conn {
	t.Helper()
	conn, _, err := ConnectWebSocket(url, TestOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes one JSON event.
func (c *Conn) SendEvent(t *testing.T, event map[string]any) {
	t.Helper()
	require.NoError(t, c.WriteJSON(event))
}

// Next returns the next payload, reading a new frame when none is pending.
func (c *Conn) Next(timeout time.Duration) (chat.Payload, error) {
	for len(c.pending) == 0 {
		if err := c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return chat.Payload{}, err
		}
		_, data, err := c.ReadMessage()
		if err != nil {
			return chat.Payload{}, err
		}
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var p chat.Payload
			if err := json.Unmarshal(line, &p); err != nil {
				return chat.Payload{}, err
			}
			c.pending = append(c.pending, p)
		}
	}

	p := c.pending[0]
	c.pending = c.pending[1:]
	return p, nil
}

// CollectUntil reads payloads until stop matches one, and returns everything
// read including the match.
func (c *Conn) CollectUntil(t *testing.T, stop func(chat.Payload) bool) []chat.Payload {
	t.Helper()
	var seen []chat.Payload
	for {
		p, err := c.Next(DefaultTimeout)
		require.NoError(t, err, "waiting for payload; received so far: %+v", seen)
		seen = append(seen, p)
		if stop(p) {
			return seen
		}
	}
}

// ReceiveUntil skips payloads until one of kind arrives, optionally also
// requiring the acting nickname.
func (c *Conn) ReceiveUntil(t *testing.T, kind chat.Kind, nickname string) chat.Payload {
	t.Helper()
	seen := c.CollectUntil(t, func(p chat.Payload) bool {
		return p.Type == kind && (nickname == "" || p.Nickname == nickname)
	})
	return seen[len(seen)-1]
}

// CreateAccount claims nickname and waits for the server's confirmation.
func (c *Conn) CreateAccount(t *testing.T, nickname string) {
	t.Helper()
	c.SendEvent(t, map[string]any{"type": "account:create", "nickname": nickname, "avatar": ""})
	c.ReceiveUntil(t, chat.KindUserJoin, nickname)
}

// CloseWebSocket sends a normal close frame and closes the connection.
func (c *Conn) CloseWebSocket() error {
	err := c.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return c.Close()
}
