package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chat-sync/internal/observability"
)

const wsRoutingKey = "ws_events.rooms"

// Hub tracks live websocket peers per room.
type Hub struct {
	rooms  map[string]map[*peer]ConnInfo
	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*peer]ConnInfo),
		logger: logger,
	}
}

func (h *Hub) add(p *peer, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[info.RoomID]; !ok {
		h.rooms[info.RoomID] = make(map[*peer]ConnInfo)
	}
	h.rooms[info.RoomID][p] = info
}

func (h *Hub) remove(roomID string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.rooms[roomID]; ok {
		delete(peers, p)
		if len(peers) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Count reports the peers connected to roomID.
func (h *Hub) Count(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Rooms reports how many rooms have at least one peer.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// CloseAll sends a going-away close frame to every peer.
func (h *Hub) CloseAll(reason string) {
	h.mu.RLock()
	peers := make([]*peer, 0)
	for _, room := range h.rooms {
		for p := range room {
			peers = append(peers, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range peers {
		p.shutdown(websocket.FormatCloseMessage(websocket.CloseGoingAway, reason))
	}
}

func (h *Hub) publishWSEvent(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(event)
	err := observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: observability.WSEvent{
			RoomID:     info.RoomID,
			Event:      event,
			ConnID:     info.ConnID,
			Author:     info.AuthorName,
			IP:         info.IP,
			DeviceID:   info.DeviceID,
			DurationMS: time.Since(info.ConnectedAt).Milliseconds(),
			Reason:     reason,
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
	if err != nil {
		h.logger.Debug().Err(err).Str("event", event).Msg("ws event publish failed")
	}
}
