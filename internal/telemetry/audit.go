package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      zerolog.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	AuthorName    string       `json:"author_name,omitempty"`
	RoomID        string       `json:"room_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// AuditEntry is one auditable outcome.
type AuditEntry struct {
	Level      string
	Text       string
	RequestID  string
	AuthorName string
	RoomID     string
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger zerolog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
	}
}

// Emit publishes entry. A nil emitter drops it.
func (e *AuditEmitter) Emit(ctx context.Context, entry AuditEntry) {
	if e == nil || e.publisher == nil {
		return
	}

	e.logger.Debug().
		Str("level", entry.Level).
		Str("request_id", entry.RequestID).
		Str("room_id", entry.RoomID).
		Str("text", entry.Text).
		Msg("audit emit")

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     entry.RequestID,
		AuthorName:    entry.AuthorName,
		RoomID:        entry.RoomID,
		Payload: AuditPayload{
			Level: entry.Level,
			Text:  entry.Text,
		},
	}

	headers := map[string]string{}
	if entry.RequestID != "" {
		headers["x-request-id"] = entry.RequestID
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		e.logger.Warn().Err(err).Msg("audit publish failed")
	}
}
