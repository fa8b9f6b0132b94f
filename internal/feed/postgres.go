package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const pgChannel = "chat_messages"

// Postgres carries notifications over LISTEN/NOTIFY on the message database.
type Postgres struct {
	db     *sqlx.DB
	dsn    string
	logger zerolog.Logger
}

// NewPostgres publishes through db and opens one listener connection per subscription on dsn.
func NewPostgres(db *sqlx.DB, dsn string, logger zerolog.Logger) *Postgres {
	return &Postgres{db: db, dsn: dsn, logger: logger}
}

func (p *Postgres) Publish(ctx context.Context, n Notification) error {
	payload, err := encode(n)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, pgChannel, string(payload))
	return err
}

func (p *Postgres) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	var listener *pq.Listener
	s := newStream(func() error { return listener.Close() })
	listener = pq.NewListener(p.dsn, 500*time.Millisecond, 10*time.Second, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			// end closes the listener, which must not happen on its own callback
			go s.end(fmt.Errorf("%w: %v", ErrFeedClosed, err))
		case pq.ListenerEventConnectionAttemptFailed:
			p.logger.Warn().Err(err).Str("room_id", roomID).Msg("pg listener connection attempt failed")
		}
	})

	listened := make(chan error, 1)
	go func() {
		if err := listener.Listen(pgChannel); err != nil {
			listened <- err
			return
		}
		listened <- listener.Ping()
	}()

	select {
	case err := <-listened:
		if err != nil {
			s.end(err)
			return nil, fmt.Errorf("listen %s: %w", pgChannel, err)
		}
	case <-ctx.Done():
		s.end(ctx.Err())
		return nil, ctx.Err()
	}

	go p.pump(roomID, listener, s)
	return s, nil
}

func (p *Postgres) pump(roomID string, listener *pq.Listener, s *stream) {
	for {
		select {
		case <-s.done:
			return
		case n, ok := <-listener.Notify:
			if !ok {
				s.end(ErrFeedClosed)
				return
			}
			if n == nil {
				// reconnected; anything in the gap must be caught up
				s.offer(Notification{RoomID: roomID})
				continue
			}
			parsed, err := decode([]byte(n.Extra))
			if err != nil {
				p.logger.Warn().Err(err).Msg("dropping malformed pg notification")
				continue
			}
			if parsed.RoomID == roomID {
				s.offer(parsed)
			}
		}
	}
}

// Close is a no-op; the database handle is owned by the caller.
func (p *Postgres) Close() error {
	return nil
}
