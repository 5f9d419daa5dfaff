package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsMessage is the envelope written to browser clients.
type wsMessage struct {
	Type    string `json:"type"`
	Payload Change `json:"payload"`
}

// NewWebSocketHandler streams changes for resources to a WebSocket client
// until it disconnects.
func NewWebSocketHandler(broker *Broker, resources []string, checkOrigin func(*http.Request) bool) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.Ctx(r.Context())

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}

		send := make(chan Change, broker.queueSize)
		sub, err := broker.Subscribe(resources, func(change Change) {
			select {
			case send <- change:
			default:
				logger.Warn().Str("resource", change.Resource).Msg("WebSocket client too slow; dropping change")
			}
		})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to subscribe WebSocket client")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"),
				time.Now().Add(writeWait))
			conn.Close()
			return
		}

		logger.Info().Str("subscription_id", sub.ID().String()).Msg("WebSocket change stream opened")

		closed := make(chan struct{})
		go readPump(conn, closed)
		writePump(conn, send, closed)

		sub.Unsubscribe()
		conn.Close()
		logger.Info().Str("subscription_id", sub.ID().String()).Msg("WebSocket change stream closed")
	})
}

// readPump discards client messages and signals when the connection drops.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, send <-chan Change, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case change := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(wsMessage{Type: "change", Payload: change}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
