package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/inbox-deck/internal/eventbus"
	"github.com/asheshgoplani/inbox-deck/internal/logging"
)

// heartbeatInterval is how often idle event clients receive a heartbeat.
var heartbeatInterval = 30 * time.Second

// wsConn serializes writes. A gorilla connection supports one concurrent
// writer, and broadcasts race with the heartbeat and error replies.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// handleEventBusWS upgrades an HTTP request to a WebSocket connection and
// registers the client with the EventBus Hub for channel-based event routing.
func (s *Server) handleEventBusWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	raw, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	webLog := logging.ForComponent(logging.CompWeb)

	clientID := s.eventHub.RegisterClient(conn)
	webLog.Info("eventbus_client_connected", slog.String("client_id", clientID))
	defer func() {
		s.eventHub.UnregisterClient(clientID)
		webLog.Info("eventbus_client_disconnected", slog.String("client_id", clientID))
	}()

	// Send a welcome message so the client knows the connection is ready.
	_ = conn.WriteJSON(eventbus.ServerMessage{Type: "connected"})

	// Periodic heartbeats keep proxies from closing idle connections and
	// surface dead clients through write errors.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.baseCtx.Done():
				// Unblocks the read loop; hijacked connections outlive Shutdown.
				_ = raw.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteJSON(eventbus.ServerMessage{
					Type: "heartbeat",
					Data: map[string]int{"clients": s.eventHub.ClientCount()},
				}); err != nil {
					return
				}
			}
		}
	}()

	// Read loop: dispatch incoming messages to the Hub.
	for {
		_, payload, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				webLog.Warn("eventbus_ws_closed_unexpectedly",
					slog.String("client_id", clientID),
					slog.String("error", err.Error()))
			}
			return
		}

		if err := s.eventHub.HandleMessage(clientID, json.RawMessage(payload)); err != nil {
			webLog.Debug("eventbus_message_error",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()))
			_ = conn.WriteJSON(eventbus.ServerMessage{
				Type: "error",
				Data: err.Error(),
			})
		}
	}
}
