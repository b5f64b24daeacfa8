package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/iach526526/pastexam/internal/taskstream"
)

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn adapts a gorilla connection to the streamer's outbound interface.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(msg taskstream.Message) error {
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close(code int, reason string) error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), closeDeadline())
	return c.conn.Close()
}

// TaskStatusWS streams generation task status updates until the task reaches
// a terminal state or the caller's token expires.
func (a *App) TaskStatusWS(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("task ws upgrade failed")
		return
	}
	defer conn.Close()

	if a.Metrics != nil {
		a.Metrics.WSConnections.WithLabelValues("task").Inc()
		defer a.Metrics.WSConnections.WithLabelValues("task").Dec()
	}

	id, ok := a.wsIdentity(r, conn)
	if !ok {
		return
	}

	// Drain inbound frames so close handshakes and pings are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	a.Streamer.Run(r.Context(), &wsConn{conn: conn}, taskID, id.UserID, id.Exp)
}
