package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/repositories"
)

type command struct {
	sub  *Subscription
	join bool
}

type item struct {
	msg models.Message
	err error
}

// room serializes everything that happens to one room on a single goroutine.
// Only pending and wake are touched from other goroutines.
type room struct {
	s      *Session
	id     string
	logger zerolog.Logger

	mu      sync.Mutex
	pending []command
	wake    chan struct{}

	subs    []*Subscription
	watcher repositories.Watcher
	items   chan item
	stop    chan struct{}
	pumped  chan struct{}

	// tail holds the messages dispatched live with ids in (tailFloor, cursor].
	cursor    int64
	tail      []models.Message
	tailFloor int64

	outage  bool
	attempt int
	retry   *time.Timer
	retryC  <-chan time.Time
}

func newRoom(s *Session, id string) *room {
	return &room{
		s:      s,
		id:     id,
		logger: s.logger.With().Str("room_id", id).Logger(),
		wake:   make(chan struct{}, 1),
	}
}

func (r *room) enqueue(c command) {
	r.mu.Lock()
	r.pending = append(r.pending, c)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *room) run() {
	defer r.s.wg.Done()
	defer r.teardown()

	ctx := r.s.ctx
	for {
		if ctx.Err() != nil {
			return
		}

		r.applyPending()
		if len(r.subs) == 0 {
			if r.s.release(r) {
				return
			}
			continue
		}

		if r.retryC == nil {
			if err := r.replay(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				r.detach()
				r.fail(err)
				continue
			}
			if r.watcher == nil {
				if err := r.attach(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					r.fail(err)
					continue
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		case <-r.retryC:
			r.retryC = nil
			for _, sub := range r.subs {
				if sub.State() == StateDisconnected {
					sub.setState(StateConnecting)
				}
			}
		case it := <-r.items:
			if it.err != nil {
				r.detach()
				r.fail(it.err)
				continue
			}
			r.dispatch(it.msg)
		}
	}
}

func (r *room) applyPending() {
	r.mu.Lock()
	cmds := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, c := range cmds {
		if c.join {
			if !c.sub.Active() {
				continue
			}
			c.sub.needsReplay = true
			r.subs = append(r.subs, c.sub)
			continue
		}
		for i, sub := range r.subs {
			if sub == c.sub {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				break
			}
		}
	}
}

// replay brings every newly joined subscription up to date, from the tail when
// it reaches back far enough and from the store otherwise.
func (r *room) replay(ctx context.Context) error {
	for _, sub := range r.subs {
		if !sub.needsReplay || !sub.Active() {
			continue
		}
		if sub.State() != StateDisconnected {
			sub.setState(StateReplaying)
		}

		if r.watcher != nil && sub.Cursor() >= r.tailFloor {
			for _, msg := range r.tail {
				if sub.deliver(models.MessageEvent(msg)) {
					observability.IncDelivery("tail")
				}
			}
		} else if err := r.replayFromStore(ctx, sub); err != nil {
			return err
		}

		sub.needsReplay = false
		if r.watcher != nil {
			sub.setState(StateLive)
		}
	}
	return nil
}

func (r *room) replayFromStore(ctx context.Context, sub *Subscription) error {
	for {
		readCtx, cancel := context.WithTimeout(ctx, r.s.cfg.AttachTimeout)
		msgs, err := r.s.store.ReadRange(readCtx, r.id, sub.Cursor(), r.s.cfg.PageSize)
		cancel()
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			if !sub.Active() {
				return nil
			}
			if sub.deliver(models.MessageEvent(msg)) {
				observability.IncDelivery("replay")
			}
		}
		if len(msgs) < r.s.cfg.PageSize {
			return nil
		}
	}
}

// attach opens a watcher from the lowest cursor among the subscriptions, so
// nothing any of them has not yet seen is skipped.
func (r *room) attach(ctx context.Context) error {
	from := int64(-1)
	for _, sub := range r.subs {
		if c := sub.Cursor(); from < 0 || c < from {
			from = c
		}
	}
	if from < 0 {
		from = 0
	}

	attachCtx, cancel := context.WithTimeout(ctx, r.s.cfg.AttachTimeout)
	w, err := r.s.store.Watch(attachCtx, r.id, from)
	cancel()
	if err != nil {
		if r.outage {
			observability.IncReattach("failed")
		}
		return err
	}

	if r.outage {
		observability.IncReattach("ok")
		r.logger.Info().Int("attempts", r.attempt).Msg("room reattached")
	}
	r.outage = false
	r.attempt = 0
	r.cursor = from
	r.tail = r.tail[:0]
	r.tailFloor = from

	items := make(chan item)
	stop := make(chan struct{})
	pumped := make(chan struct{})
	go pump(w, items, stop, pumped)
	r.watcher, r.items, r.stop, r.pumped = w, items, stop, pumped

	for _, sub := range r.subs {
		if sub.Active() && !sub.needsReplay {
			sub.setState(StateLive)
		}
	}
	return nil
}

func pump(w repositories.Watcher, items chan<- item, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for msg, err := range w.Messages() {
		select {
		case items <- item{msg: msg, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
	select {
	case items <- item{err: repositories.ErrStoreUnavailable}:
	case <-stop:
	}
}

func (r *room) detach() {
	if r.watcher == nil {
		return
	}
	close(r.stop)
	if err := r.watcher.Close(); err != nil {
		r.logger.Debug().Err(err).Msg("watcher close")
	}
	<-r.pumped
	r.watcher, r.items, r.stop, r.pumped = nil, nil, nil, nil
}

// fail enters an outage, if not already in one, and schedules the next attempt.
func (r *room) fail(err error) {
	if !r.outage {
		r.outage = true
		observability.IncDisconnect()
		r.logger.Warn().Err(err).Msg("room disconnected")
		for _, sub := range r.subs {
			switch sub.State() {
			case StateLive, StateReplaying:
				sub.setState(StateDisconnected)
				sub.deliver(models.DisconnectedEvent(r.id))
			}
		}
	} else {
		for _, sub := range r.subs {
			if sub.State() == StateReplaying {
				sub.setState(StateConnecting)
			}
		}
	}

	delay := r.s.cfg.Backoff.Delay(r.attempt)
	r.attempt++
	r.logger.Debug().Err(err).Int("attempt", r.attempt).Dur("delay", delay).Msg("scheduling reattach")
	if r.retry == nil {
		r.retry = time.NewTimer(delay)
	} else {
		r.retry.Reset(delay)
	}
	r.retryC = r.retry.C
}

func (r *room) dispatch(msg models.Message) {
	if msg.ID <= r.cursor {
		return
	}
	r.cursor = msg.ID
	r.tail = append(r.tail, msg)
	if len(r.tail) > r.s.cfg.TailSize {
		r.tailFloor = r.tail[0].ID
		r.tail = r.tail[1:]
	}

	ev := models.MessageEvent(msg)
	for _, sub := range r.subs {
		if sub.needsReplay {
			continue
		}
		if sub.deliver(ev) {
			observability.IncDelivery("live")
		}
	}
}

func (r *room) teardown() {
	r.detach()
	if r.retry != nil {
		r.retry.Stop()
	}
	for _, sub := range r.subs {
		if sub.alive.CompareAndSwap(true, false) {
			observability.AddActiveSubscriptions(-1)
		}
		sub.state.Store(int32(StateClosed))
	}
	r.subs = nil
	observability.AddActiveRooms(-1)
}
