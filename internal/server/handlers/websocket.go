package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
)

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: (60 * time.Second * 9) / 10,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, this should be more restrictive
		return true
	},
}

// TrendWebSocketHandler streams live trend activity to clients: spike
// detections and pass completions published on the engine's NATS
// subjects.
func TrendWebSocketHandler(natsConn *nats.Conn, eventsTopic string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		send := make(chan []byte, 256)

		sub, err := natsConn.Subscribe(eventsTopic+".>", func(msg *nats.Msg) {
			select {
			case send <- msg.Data:
			default:
				// Slow consumer; drop rather than block the bus.
			}
		})
		if err != nil {
			logger.Warn("websocket subscribe failed", "error", err)
			conn.Close()
			return
		}

		go writePump(conn, send, sub)
		go readPump(conn, sub)
	}
}

// readPump drains control frames until the peer goes away.
func readPump(conn *websocket.Conn, sub *nats.Subscription) {
	config := DefaultWebSocketConfig()

	defer func() {
		sub.Unsubscribe()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(config.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards NATS messages to the WebSocket connection.
func writePump(conn *websocket.Conn, send chan []byte, sub *nats.Subscription) {
	config := DefaultWebSocketConfig()
	ticker := time.NewTicker(config.PingPeriod)

	defer func() {
		ticker.Stop()
		sub.Unsubscribe()
		conn.Close()
	}()

	for {
		select {
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
