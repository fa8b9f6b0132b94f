// Package chat is the composition root for sending and following room messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/session"
	"chat-sync/internal/telemetry"
)

var (
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrMessageTooLong = errors.New("message text exceeds length limit")
	ErrEmptyMedia     = errors.New("media payload is empty")
)

// SendFailedError is a terminal failure of one send attempt. The caller
// decides whether to resubmit.
type SendFailedError struct {
	Cause error
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Cause)
}

func (e *SendFailedError) Unwrap() error { return e.Cause }

// Store is the slice of the message store the client writes and reads.
type Store interface {
	Append(ctx context.Context, draft models.PendingMessage) (models.Message, error)
	ReadRange(ctx context.Context, roomID string, afterID int64, limit int) ([]models.Message, error)
}

type Uploader interface {
	Upload(ctx context.Context, payload []byte, suggestedName string) (string, error)
}

// LimitSource supplies the current message length limit. A non-positive
// value disables the check.
type LimitSource interface {
	MessageLengthLimit(ctx context.Context) int
}

type Subscriber interface {
	Subscribe(roomID string, listener session.Listener, opts ...session.Option) (*session.Subscription, error)
	Unsubscribe(sub *session.Subscription)
}

type sendOptions struct {
	correlationID string
	requestID     string
}

type SendOption func(*sendOptions)

// WithCorrelationID reuses a caller token so a resubmitted send is stored once.
func WithCorrelationID(id string) SendOption {
	return func(o *sendOptions) { o.correlationID = id }
}

func WithRequestID(id string) SendOption {
	return func(o *sendOptions) { o.requestID = id }
}

type Client struct {
	store    Store
	uploader Uploader
	sessions Subscriber
	limits   LimitSource
	audit    *telemetry.AuditEmitter
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewClient wires a Client. limits and audit may be nil.
func NewClient(store Store, uploader Uploader, sessions Subscriber, limits LimitSource, audit *telemetry.AuditEmitter, logger zerolog.Logger) *Client {
	return &Client{
		store:    store,
		uploader: uploader,
		sessions: sessions,
		limits:   limits,
		audit:    audit,
		logger:   logger,
		tracer:   otel.Tracer("chat-sync/chat"),
	}
}

// SendText appends a text message to roomID.
func (c *Client) SendText(ctx context.Context, roomID, authorName, text string, opts ...SendOption) (models.Message, error) {
	o := c.options(opts)
	ctx, span := c.tracer.Start(ctx, "chat.send_text", trace.WithAttributes(
		attribute.String("room_id", roomID),
		attribute.String("correlation_id", o.correlationID),
	))
	defer span.End()

	if strings.TrimSpace(roomID) == "" {
		return c.reject(ctx, span, "text", roomID, authorName, o, models.ErrMissingRoom)
	}
	if strings.TrimSpace(text) == "" {
		return c.reject(ctx, span, "text", roomID, authorName, o, ErrEmptyMessage)
	}
	if c.limits != nil {
		if limit := c.limits.MessageLengthLimit(ctx); limit > 0 {
			if n := utf8.RuneCountInString(text); n > limit {
				return c.reject(ctx, span, "text", roomID, authorName, o, fmt.Errorf("%w: %d > %d characters", ErrMessageTooLong, n, limit))
			}
		}
	}

	return c.append(ctx, span, "text", models.PendingMessage{
		CorrelationID: o.correlationID,
		RoomID:        roomID,
		AuthorName:    models.AuthorOrAnonymous(authorName),
		Text:          text,
	}, o)
}

// SendMedia uploads payload and appends a message referencing it. Nothing is
// appended unless the upload succeeded.
func (c *Client) SendMedia(ctx context.Context, roomID, authorName string, payload []byte, suggestedName string, opts ...SendOption) (models.Message, error) {
	o := c.options(opts)
	ctx, span := c.tracer.Start(ctx, "chat.send_media", trace.WithAttributes(
		attribute.String("room_id", roomID),
		attribute.String("correlation_id", o.correlationID),
		attribute.Int("payload_bytes", len(payload)),
	))
	defer span.End()

	if strings.TrimSpace(roomID) == "" {
		return c.reject(ctx, span, "media", roomID, authorName, o, models.ErrMissingRoom)
	}
	if len(payload) == 0 {
		return c.reject(ctx, span, "media", roomID, authorName, o, ErrEmptyMedia)
	}

	url, err := c.uploader.Upload(ctx, payload, suggestedName)
	if err != nil {
		return c.failed(ctx, span, "media", roomID, authorName, o, err)
	}
	span.SetAttributes(attribute.String("media_url", url))

	return c.append(ctx, span, "media", models.PendingMessage{
		CorrelationID: o.correlationID,
		RoomID:        roomID,
		AuthorName:    models.AuthorOrAnonymous(authorName),
		MediaURL:      url,
	}, o)
}

// Subscribe follows roomID through the sync session.
func (c *Client) Subscribe(roomID string, listener session.Listener, opts ...session.Option) (*session.Subscription, error) {
	return c.sessions.Subscribe(roomID, listener, opts...)
}

func (c *Client) Unsubscribe(sub *session.Subscription) {
	c.sessions.Unsubscribe(sub)
}

// History reads up to limit messages after afterID.
func (c *Client) History(ctx context.Context, roomID string, afterID int64, limit int) ([]models.Message, error) {
	return c.store.ReadRange(ctx, roomID, afterID, limit)
}

func (c *Client) options(opts []SendOption) sendOptions {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.correlationID == "" {
		o.correlationID = uuid.NewString()
	}
	return o
}

func (c *Client) append(ctx context.Context, span trace.Span, kind string, draft models.PendingMessage, o sendOptions) (models.Message, error) {
	msg, err := c.store.Append(ctx, draft)
	if errors.Is(err, models.ErrInvalidDraft) {
		return c.reject(ctx, span, kind, draft.RoomID, draft.AuthorName, o, err)
	}
	if err != nil {
		return c.failed(ctx, span, kind, draft.RoomID, draft.AuthorName, o, err)
	}

	observability.IncSend(kind, "ok")
	span.SetAttributes(attribute.Int64("message_id", msg.ID))
	c.logger.Debug().Str("room_id", msg.RoomID).Int64("message_id", msg.ID).Str("kind", kind).Msg("message sent")
	c.audit.Emit(ctx, telemetry.AuditEntry{
		Level:      "info",
		Text:       fmt.Sprintf("%s message %d sent", kind, msg.ID),
		RequestID:  o.requestID,
		AuthorName: msg.AuthorName,
		RoomID:     msg.RoomID,
	})
	return msg, nil
}

func (c *Client) reject(ctx context.Context, span trace.Span, kind, roomID, authorName string, o sendOptions, err error) (models.Message, error) {
	observability.IncSend(kind, "rejected")
	span.SetStatus(codes.Error, err.Error())
	c.audit.Emit(ctx, telemetry.AuditEntry{
		Level:      "warn",
		Text:       fmt.Sprintf("%s message rejected: %v", kind, err),
		RequestID:  o.requestID,
		AuthorName: models.AuthorOrAnonymous(authorName),
		RoomID:     roomID,
	})
	return models.Message{}, err
}

func (c *Client) failed(ctx context.Context, span trace.Span, kind, roomID, authorName string, o sendOptions, cause error) (models.Message, error) {
	observability.IncSend(kind, "failed")
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	c.logger.Warn().Err(cause).Str("room_id", roomID).Str("kind", kind).Msg("send failed")
	c.audit.Emit(ctx, telemetry.AuditEntry{
		Level:      "error",
		Text:       fmt.Sprintf("%s message failed: %v", kind, cause),
		RequestID:  o.requestID,
		AuthorName: models.AuthorOrAnonymous(authorName),
		RoomID:     roomID,
	})
	return models.Message{}, &SendFailedError{Cause: cause}
}
