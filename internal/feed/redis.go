package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis carries notifications over Redis pub/sub.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(ctx context.Context, redisURL string, logger zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Redis{client: client, logger: logger}, nil
}

func redisChannel(roomID string) string {
	return fmt.Sprintf("chat:room:%s", roomID)
}

func (r *Redis) Publish(ctx context.Context, n Notification) error {
	payload, err := encode(n)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, redisChannel(n.RoomID), payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, redisChannel(roomID))
	// wait for the subscription to be confirmed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("%w: %v", ErrFeedClosed, err)
	}

	s := newStream(ps.Close)
	go func() {
		for {
			msg, err := ps.Receive(context.Background())
			if err != nil {
				s.end(fmt.Errorf("%w: %v", ErrFeedClosed, err))
				return
			}
			m, ok := msg.(*redis.Message)
			if !ok {
				continue
			}
			n, err := decode([]byte(m.Payload))
			if err != nil {
				r.logger.Warn().Err(err).Msg("dropping malformed redis notification")
				continue
			}
			s.offer(n)
		}
	}()
	return s, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
