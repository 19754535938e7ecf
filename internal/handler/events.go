package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"ideaflow/internal/events"
)

const eventWriteTimeout = 5 * time.Second

// EventsHandler streams pipeline events over a websocket so observers (UI
// status panels, pollers) follow state changes without re-fetching.
type EventsHandler struct {
	Hub    *events.Hub
	Logger *zap.Logger
}

func (h *EventsHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/events/stream", h.stream)
}

// @Summary Subscribe to the pipeline event stream
// @Tags events
// @Router /api/v1/events/stream [get]
func (h *EventsHandler) stream(c *gin.Context) {
	if h.Hub == nil {
		Error(c, http.StatusInternalServerError, "event hub unavailable", nil)
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch := h.Hub.Subscribe(64)
	defer h.Hub.Unsubscribe(ch)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				if h.Logger != nil {
					h.Logger.Debug("event stream closed", zap.Error(err))
				}
				return
			}
		}
	}
}
