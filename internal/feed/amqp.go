package feed

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQP fans notifications out through a RabbitMQ topic exchange.
type AMQP struct {
	conn     *amqp.Connection
	pub      *amqp.Channel
	pubMu    sync.Mutex
	exchange string
	logger   zerolog.Logger
}

// NewAMQP dials url and declares exchange.
func NewAMQP(url, exchange string, logger zerolog.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}

	logger.Info().Str("exchange", exchange).Msg("amqp feed connected")
	return &AMQP{conn: conn, pub: ch, exchange: exchange, logger: logger}, nil
}

// routingKey encodes roomID so topic wildcards in room names never match.
func routingKey(roomID string) string {
	return "room." + base64.RawURLEncoding.EncodeToString([]byte(roomID))
}

func (a *AMQP) Publish(ctx context.Context, n Notification) error {
	body, err := encode(n)
	if err != nil {
		return err
	}

	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	return a.pub.PublishWithContext(ctx, a.exchange, routingKey(n.RoomID), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	})
}

func (a *AMQP) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch, err := a.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedClosed, err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey(roomID), a.exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("amqp queue bind: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("amqp consume: %w", err)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	s := newStream(ch.Close)
	go func() {
		for {
			select {
			case <-s.done:
				return
			case amqpErr := <-closed:
				s.end(fmt.Errorf("%w: %v", ErrFeedClosed, amqpErr))
				return
			case d, ok := <-deliveries:
				if !ok {
					s.end(ErrFeedClosed)
					return
				}
				n, err := decode(d.Body)
				if err != nil {
					a.logger.Warn().Err(err).Msg("dropping malformed amqp notification")
					continue
				}
				s.offer(n)
			}
		}
	}()
	return s, nil
}

func (a *AMQP) Close() error {
	if a.pub != nil {
		_ = a.pub.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
