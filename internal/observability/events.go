package observability

// EventEnvelope wraps lifecycle events published to the broker.
type EventEnvelope struct {
	EventType string `json:"event_type"`
	EventName string `json:"event_name"`
	Payload   any    `json:"payload"`
}

// WSEvent is the payload of ws_events envelopes.
type WSEvent struct {
	RoomID     string `json:"room_id"`
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	Author     string `json:"author_name"`
	IP         string `json:"ip"`
	DeviceID   string `json:"device_id,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
