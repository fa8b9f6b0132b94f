package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"chat-sync/internal/telemetry"
)

// Publisher publishes audit and lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher, or a noop publisher when AMQP is
// disabled or unreachable.
func NewPublisher(amqpURL, exchange string, logger zerolog.Logger) Publisher {
	if amqpURL == "" {
		logger.Info().Msg("rabbitmq disabled, using noop: empty amqp url")
		return noopPublisher{reason: "empty amqp url", logger: logger}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq disabled, using noop")
		return noopPublisher{reason: err.Error(), logger: logger}
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq disabled, using noop")
		_ = conn.Close()
		return noopPublisher{reason: err.Error(), logger: logger}
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		logger.Warn().Err(err).Str("exchange", exchange).Msg("rabbitmq disabled, using noop")
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{reason: err.Error(), logger: logger}
	}

	logger.Info().Str("exchange", exchange).Msg("rabbitmq connected")
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	table := amqp.Table{}
	for k, v := range headers {
		table[k] = v
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      table,
		Body:         body,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("routing_key", routingKey).Msg("rabbitmq publish failed")
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
	logger zerolog.Logger
}

func (p noopPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	entry := p.logger.Debug().Str("routing_key", routingKey)
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		entry = entry.Str("event_type", envelope.EventType).Str("request_id", envelope.RequestID)
	case *telemetry.AuditEnvelope:
		entry = entry.Str("event_type", envelope.EventType).Str("request_id", envelope.RequestID)
	}
	entry.Msg("rabbitmq noop publish")
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher, *noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

func PublisherNoopReason(p Publisher) string {
	switch publisher := p.(type) {
	case noopPublisher:
		return publisher.reason
	case *noopPublisher:
		return publisher.reason
	default:
		return ""
	}
}
