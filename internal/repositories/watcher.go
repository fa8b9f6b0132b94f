package repositories

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"chat-sync/internal/feed"
	"chat-sync/internal/models"
)

const watchPageSize = 100

type watcher struct {
	repo   *MessageRepo
	sub    feed.Subscription
	roomID string
	cursor int64

	done chan struct{}
	once sync.Once
}

func newWatcher(repo *MessageRepo, sub feed.Subscription, roomID string, afterID int64) *watcher {
	return &watcher{
		repo:   repo,
		sub:    sub,
		roomID: roomID,
		cursor: afterID,
		done:   make(chan struct{}),
	}
}

func (w *watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.sub.Close()
	})
	return err
}

func (w *watcher) closed() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Messages reads the backlog after the starting cursor, then follows feed
// notifications and periodic polls. Every yielded id is strictly greater than
// the previous one.
func (w *watcher) Messages() iter.Seq2[models.Message, error] {
	return func(yield func(models.Message, error) bool) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-w.done:
				cancel()
			case <-ctx.Done():
			}
		}()

		ticker := time.NewTicker(w.repo.pollInterval)
		defer ticker.Stop()

		if !w.catchUp(ctx, yield) {
			return
		}
		for {
			select {
			case <-w.done:
				return
			case <-w.sub.Done():
				if w.closed() {
					return
				}
				yield(models.Message{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, w.sub.Err()))
				return
			case n := <-w.sub.C():
				if n.ID != 0 && n.ID <= w.cursor {
					continue
				}
				if !w.catchUp(ctx, yield) {
					return
				}
			case <-ticker.C:
				if !w.catchUp(ctx, yield) {
					return
				}
			}
		}
	}
}

// catchUp yields everything after the cursor. It returns false when iteration must stop.
func (w *watcher) catchUp(ctx context.Context, yield func(models.Message, error) bool) bool {
	for {
		msgs, err := w.repo.ReadRange(ctx, w.roomID, w.cursor, watchPageSize)
		if err != nil {
			if !w.closed() {
				yield(models.Message{}, unavailable(err))
			}
			return false
		}
		for _, msg := range msgs {
			if msg.ID <= w.cursor {
				continue
			}
			if w.closed() {
				return false
			}
			w.cursor = msg.ID
			if !yield(msg, nil) {
				return false
			}
		}
		if len(msgs) < watchPageSize {
			return true
		}
	}
}
