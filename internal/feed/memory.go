package feed

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process feed for single-node deployments and tests.
type Memory struct {
	mu     sync.Mutex
	rooms  map[string]map[*stream]struct{}
	closed bool
}

// NewMemory creates an empty in-process feed.
func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]map[*stream]struct{})}
}

func (m *Memory) Publish(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrFeedClosed
	}
	for s := range m.rooms[n.RoomID] {
		s.offer(n)
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrFeedClosed
	}

	var s *stream
	s = newStream(func() error {
		m.remove(roomID, s)
		return nil
	})
	if _, ok := m.rooms[roomID]; !ok {
		m.rooms[roomID] = make(map[*stream]struct{})
	}
	m.rooms[roomID][s] = struct{}{}
	return s, nil
}

// Drop ends every subscription on roomID with cause, simulating a transport loss.
func (m *Memory) Drop(roomID string, cause error) {
	m.mu.Lock()
	streams := make([]*stream, 0, len(m.rooms[roomID]))
	for s := range m.rooms[roomID] {
		streams = append(streams, s)
	}
	m.mu.Unlock()

	for _, s := range streams {
		s.end(fmt.Errorf("%w: %v", ErrFeedClosed, cause))
	}
}

// Subscribers reports the number of live subscriptions on roomID.
func (m *Memory) Subscribers(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms[roomID])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	var streams []*stream
	for _, subs := range m.rooms {
		for s := range subs {
			streams = append(streams, s)
		}
	}
	m.mu.Unlock()

	for _, s := range streams {
		s.end(ErrFeedClosed)
	}
	return nil
}

func (m *Memory) remove(roomID string, s *stream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.rooms[roomID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(m.rooms, roomID)
		}
	}
}
