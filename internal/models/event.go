package models

const (
	EventMessage      = "message"
	EventDisconnected = "disconnected"
)

// Event is delivered to room subscribers and streamed over WebSockets.
type Event struct {
	Type    string   `json:"type"`
	RoomID  string   `json:"room_id"`
	Message *Message `json:"message,omitempty"`
}

// MessageEvent wraps msg in a message event.
func MessageEvent(msg Message) Event {
	return Event{Type: EventMessage, RoomID: msg.RoomID, Message: &msg}
}

// DisconnectedEvent notifies subscribers that the room stream is reattaching.
func DisconnectedEvent(roomID string) Event {
	return Event{Type: EventDisconnected, RoomID: roomID}
}
