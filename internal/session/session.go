// Package session bridges a room's message store activity to any number of
// subscribers with exactly-once, in-order delivery per subscriber.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/repositories"
)

var (
	ErrSessionClosed = errors.New("sync session closed")
	ErrInvalidRoom   = errors.New("room id is required")
)

// Store is the part of the message store a session reads from.
type Store interface {
	ReadRange(ctx context.Context, roomID string, afterID int64, limit int) ([]models.Message, error)
	Watch(ctx context.Context, roomID string, afterID int64) (repositories.Watcher, error)
}

// Config tunes reattachment and replay.
type Config struct {
	Backoff       Backoff
	AttachTimeout time.Duration
	PageSize      int
	TailSize      int
}

// DefaultConfig reattaches with 1s..30s full-jitter backoff and a 10s attach timeout.
func DefaultConfig() Config {
	return Config{
		Backoff:       Backoff{Base: time.Second, Cap: 30 * time.Second},
		AttachTimeout: 10 * time.Second,
		PageSize:      100,
		TailSize:      100,
	}
}

// Session owns one room state per room with at least one subscriber.
type Session struct {
	store  Store
	cfg    Config
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
}

// New creates a session reading from store.
func New(store Store, cfg Config, logger zerolog.Logger) *Session {
	defaults := DefaultConfig()
	if cfg.AttachTimeout <= 0 {
		cfg.AttachTimeout = defaults.AttachTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaults.PageSize
	}
	if cfg.TailSize <= 0 {
		cfg.TailSize = defaults.TailSize
	}
	if cfg.Backoff.Cap <= 0 {
		cfg.Backoff = defaults.Backoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		store:  store,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]*room),
	}
}

// Subscribe registers listener on roomID and returns immediately. The backlog
// after the subscription's cursor is replayed before any live event. It is
// safe to call from inside a listener.
func (s *Session) Subscribe(roomID string, listener Listener, opts ...Option) (*Subscription, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, ErrInvalidRoom
	}

	sub := &Subscription{roomID: roomID, listener: listener}
	for _, opt := range opts {
		opt(sub)
	}
	sub.alive.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	r, ok := s.rooms[roomID]
	if !ok {
		r = newRoom(s, roomID)
		s.rooms[roomID] = r
		observability.AddActiveRooms(1)
		s.wg.Add(1)
		go r.run()
	}
	sub.room = r
	sub.setState(StateConnecting)
	r.enqueue(command{sub: sub, join: true})
	observability.AddActiveSubscriptions(1)
	return sub, nil
}

// Unsubscribe stops delivery to sub before it returns. Removal from the room
// is applied after any delivery in progress; the last unsubscribe tears the
// room down.
func (s *Session) Unsubscribe(sub *Subscription) {
	if sub == nil || !sub.alive.CompareAndSwap(true, false) {
		return
	}
	sub.state.Store(int32(StateClosed))
	observability.AddActiveSubscriptions(-1)
	sub.room.enqueue(command{sub: sub})
}

// ActiveRooms reports how many rooms currently hold state.
func (s *Session) ActiveRooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Close tears down every room and waits for their goroutines, including any
// listener call in progress. Calling it from a listener deadlocks.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.rooms = make(map[string]*room)
	s.mu.Unlock()
}

// release removes r if nothing is registered or queued on it.
func (s *Session) release(r *room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) > 0 {
		return false
	}
	if s.rooms[r.id] == r {
		delete(s.rooms, r.id)
	}
	return true
}
