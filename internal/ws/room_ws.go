package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/session"
)

// Subscriber follows rooms on behalf of websocket peers.
type Subscriber interface {
	Subscribe(roomID string, listener session.Listener, opts ...session.Option) (*session.Subscription, error)
	Unsubscribe(sub *session.Subscription)
}

// RoomWebSocketHandler streams a room's events to websocket clients.
type RoomWebSocketHandler struct {
	hub    *Hub
	rooms  Subscriber
	logger zerolog.Logger
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *Hub, rooms Subscriber, logger zerolog.Logger) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{hub: hub, rooms: rooms, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and subscribes it to the room, replaying
// everything after the optional after cursor first.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	roomID := c.Param("room_id")
	if strings.TrimSpace(roomID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	after, ok := parseCursor(c.Query("after"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after cursor"})
		return
	}

	ctx, span := otel.Tracer("chat-sync/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	span.SetAttributes(attribute.String("room_id", roomID), attribute.Int64("after", after))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	// The request context ends when this handler returns.
	ctx = context.WithoutCancel(ctx)

	info := ConnInfo{
		ConnID:      newConnID(),
		RoomID:      roomID,
		AuthorName:  middleware.AuthorName(c),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	logger := h.logger.With().Str("room_id", roomID).Str("conn_id", info.ConnID).Logger()

	p := newPeer(conn)
	h.hub.add(p, info)
	observability.IncWSActive()
	h.hub.publishWSEvent(ctx, info, "ws_connect", "")
	logger.Debug().Str("author_name", info.AuthorName).Int64("after", after).Msg("websocket connected")

	sub, err := h.rooms.Subscribe(roomID, func(ev models.Event) {
		p.offer(ev)
	}, session.WithCursor(after))
	if err != nil {
		logger.Warn().Err(err).Msg("room subscribe failed")
		p.shutdown(websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
	}

	go p.writePump()
	go func() {
		readErr := p.readPump()
		if sub != nil {
			h.rooms.Unsubscribe(sub)
		}
		h.hub.remove(roomID, p)
		observability.DecWSActive()

		reason := readErr.Error()
		if !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			h.hub.publishWSEvent(ctx, info, "ws_error", reason)
		}
		h.hub.publishWSEvent(ctx, info, "ws_disconnect", reason)
		logger.Debug().Str("reason", reason).Msg("websocket disconnected")
	}()
}
