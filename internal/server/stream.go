package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/types"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// eventTypes reads ?types=trade,error. Empty means every type.
func eventTypes(c *gin.Context) []types.EventType {
	raw := c.Query("types")
	if raw == "" {
		return nil
	}
	var out []types.EventType
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, types.EventType(strings.ToLower(t)))
		}
	}
	return out
}

// handleEvents streams bus events as server-sent events. The current status
// is sent first.
func (s *Server) handleEvents(c *gin.Context) {
	sub := s.deps.Bus.Subscribe(eventTypes(c)...)
	defer sub.Unsubscribe()

	ctx := c.Request.Context()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(string(types.EventStatus), types.Event{Type: types.EventStatus, Content: s.deps.Engines.Status(ctx), Timestamp: time.Now()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-s.closing:
			return false
		case ev, ok := <-sub.C():
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		}
	})
}

// handleWebSocket pushes bus events as JSON text frames. Client messages are
// read only to notice disconnects.
func (s *Server) handleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.deps.Bus.Subscribe(eventTypes(c)...)
	defer sub.Unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	write := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(v); err != nil {
			logger.Debug(ctx, "WebSocket write failed", "error", err)
			return false
		}
		return true
	}

	if !write(types.Event{Type: types.EventStatus, Content: s.deps.Engines.Status(ctx), Timestamp: time.Now()}) {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case ev, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			if !write(ev) {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
