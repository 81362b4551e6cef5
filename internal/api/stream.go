package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ros-node-supervisor/internal/common/logger"
	"ros-node-supervisor/internal/nodeproc"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler serves the supplementary, non-destructive WebSocket tail of
// a single node's event stream.
type StreamHandler struct {
	registry *nodeproc.Registry
	logger   *logger.Logger
}

// NewStreamHandler creates a StreamHandler backed by registry.
func NewStreamHandler(registry *nodeproc.Registry, log *logger.Logger) *StreamHandler {
	return &StreamHandler{registry: registry, logger: log.WithFields(zap.String("component", "stream"))}
}

// Serve handles GET /nodes/:name/stream, upgrading to a WebSocket and
// relaying every NodeEvent pushed for the node from this point on.
func (s *StreamHandler) Serve(c *gin.Context) {
	name := c.Param("name")

	tail, cancel, err := s.registry.Tail(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "node not found"})
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("node", name), zap.Error(err))
		return
	}
	defer conn.Close()

	go s.readPump(conn)
	s.writePump(conn, tail)
}

// readPump drains and discards client messages, only to notice disconnects
// and keep the pong deadline alive; this endpoint is read-only from the
// client's perspective.
func (s *StreamHandler) readPump(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump relays tailed events to the client until the tail closes or a
// write fails, sending periodic pings to detect a dead connection.
func (s *StreamHandler) writePump(conn *websocket.Conn, tail <-chan nodeproc.NodeEvent) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-tail:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
