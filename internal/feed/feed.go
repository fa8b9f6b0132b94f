// Package feed carries live-change notifications for appended messages.
//
// Notifications are hints: delivery is at-least-once and may be coalesced or
// lost across reconnects. Consumers read the authoritative rows from the
// message store and filter duplicates by id.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrFeedClosed ends a subscription whose transport went away.
var ErrFeedClosed = errors.New("change feed closed")

// Notification announces that message ID was appended to RoomID. An ID of 0
// asks the consumer to catch up without naming a message.
type Notification struct {
	RoomID string `json:"room_id"`
	ID     int64  `json:"id"`
}

// Feed publishes and subscribes to per-room notifications.
type Feed interface {
	Publish(ctx context.Context, n Notification) error
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
	Close() error
}

// Subscription is one consumer's view of a room's notifications.
type Subscription interface {
	C() <-chan Notification
	// Done is closed when the subscription ends; Err then reports why.
	Done() <-chan struct{}
	Err() error
	Close() error
}

const streamBuffer = 64

type stream struct {
	ch      chan Notification
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	err     error
	cleanup func() error
}

func newStream(cleanup func() error) *stream {
	return &stream{
		ch:      make(chan Notification, streamBuffer),
		done:    make(chan struct{}),
		cleanup: cleanup,
	}
}

func (s *stream) C() <-chan Notification { return s.ch }

func (s *stream) Done() <-chan struct{} { return s.done }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Close() error {
	return s.end(nil)
}

// offer delivers n without blocking. A full buffer drops n: the consumer is
// already behind and its next catch-up read covers the message.
func (s *stream) offer(n Notification) {
	select {
	case <-s.done:
	case s.ch <- n:
	default:
	}
}

func (s *stream) end(err error) error {
	var cleanupErr error
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
		if s.cleanup != nil {
			cleanupErr = s.cleanup()
		}
	})
	return cleanupErr
}

func encode(n Notification) ([]byte, error) {
	return json.Marshal(n)
}

func decode(payload []byte) (Notification, error) {
	var n Notification
	err := json.Unmarshal(payload, &n)
	return n, err
}
