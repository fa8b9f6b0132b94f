package session

import (
	"sync/atomic"

	"chat-sync/internal/models"
)

// State is a subscription's position in its connection lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateReplaying
	StateLive
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReplaying:
		return "replaying"
	case StateLive:
		return "live"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Listener receives a subscription's events, one at a time and in id order.
// It runs on the room's goroutine and must not block for long. It may call
// Subscribe and Unsubscribe but never Session.Close.
type Listener func(models.Event)

// Subscription is one listener's interest in a room.
type Subscription struct {
	roomID   string
	listener Listener
	room     *room

	cursor atomic.Int64
	alive  atomic.Bool
	state  atomic.Int32

	// owned by the room goroutine
	needsReplay bool
}

// Option configures a subscription.
type Option func(*Subscription)

// WithCursor resumes after message id instead of replaying the full backlog.
func WithCursor(id int64) Option {
	return func(s *Subscription) {
		if id > 0 {
			s.cursor.Store(id)
		}
	}
}

func (s *Subscription) RoomID() string { return s.roomID }

// Cursor is the id of the last message delivered, 0 if none.
func (s *Subscription) Cursor() int64 { return s.cursor.Load() }

func (s *Subscription) State() State { return State(s.state.Load()) }

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool { return s.alive.Load() }

// setState moves to next unless the subscription is already closed.
func (s *Subscription) setState(next State) {
	for {
		current := s.state.Load()
		if State(current) == StateClosed {
			return
		}
		if s.state.CompareAndSwap(current, int32(next)) {
			return
		}
	}
}

// deliver hands ev to the listener if the subscription is alive and, for
// messages, the id is past the cursor.
func (s *Subscription) deliver(ev models.Event) bool {
	if !s.alive.Load() {
		return false
	}
	if ev.Message != nil {
		if ev.Message.ID <= s.cursor.Load() {
			return false
		}
		s.cursor.Store(ev.Message.ID)
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.room.logger.Error().Interface("panic", rec).Str("event", ev.Type).Msg("listener panicked")
		}
	}()
	s.listener(ev)
	return true
}
