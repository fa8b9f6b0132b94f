package repositories

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"chat-sync/internal/feed"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

const (
	DefaultRangeLimit = 100
	MaxRangeLimit     = 500

	defaultPollInterval = 5 * time.Second
)

const selectMessage = `SELECT room_id, id, author_name, text, media_url, correlation_id, created_at FROM messages`

// MessageRepository is the durable, ordered message log.
type MessageRepository interface {
	Append(ctx context.Context, draft models.PendingMessage) (models.Message, error)
	ReadRange(ctx context.Context, roomID string, afterID int64, limit int) ([]models.Message, error)
	Watch(ctx context.Context, roomID string, afterID int64) (Watcher, error)
}

// Watcher is a live stream of appends to one room.
type Watcher interface {
	// Messages yields appends in id order. It ends after yielding a single
	// ErrStoreUnavailable error, or silently once Close is called.
	Messages() iter.Seq2[models.Message, error]
	Close() error
}

// MessageRepo is a sqlx-backed MessageRepository that announces appends on a feed.
type MessageRepo struct {
	db           *sqlx.DB
	feed         feed.Feed
	logger       zerolog.Logger
	pollInterval time.Duration
}

// NewMessageRepo constructs MessageRepo. A non-positive pollInterval uses the default.
func NewMessageRepo(db *sqlx.DB, f feed.Feed, pollInterval time.Duration, logger zerolog.Logger) *MessageRepo {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &MessageRepo{db: db, feed: f, logger: logger, pollInterval: pollInterval}
}

// Append persists draft and assigns it the next id in its room. A draft whose
// correlation id is already stored in the room returns the stored message.
func (r *MessageRepo) Append(ctx context.Context, draft models.PendingMessage) (models.Message, error) {
	if err := draft.Validate(); err != nil {
		return models.Message{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		observability.IncAppend("unavailable")
		return models.Message{}, unavailable(err)
	}
	defer tx.Rollback()

	if draft.CorrelationID != "" {
		existing, err := r.byCorrelation(ctx, tx, draft.RoomID, draft.CorrelationID)
		if err == nil {
			observability.IncAppend("duplicate")
			return existing, nil
		}
		if !errors.Is(err, ErrMessageNotFound) {
			observability.IncAppend("unavailable")
			return models.Message{}, unavailable(err)
		}
	}

	id, err := nextMessageID(ctx, tx, draft.RoomID)
	if err != nil {
		observability.IncAppend("unavailable")
		return models.Message{}, unavailable(err)
	}

	msg := models.Message{
		ID:            id,
		RoomID:        draft.RoomID,
		AuthorName:    models.AuthorOrAnonymous(draft.AuthorName),
		Text:          draft.Text,
		MediaURL:      draft.MediaURL,
		CorrelationID: draft.CorrelationID,
		CreatedAt:     time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO messages (room_id, id, author_name, text, media_url, correlation_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		msg.RoomID, msg.ID, msg.AuthorName, msg.Text, msg.MediaURL, msg.CorrelationID, msg.CreatedAt)
	if err != nil {
		observability.IncAppend("unavailable")
		return models.Message{}, unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		observability.IncAppend("unavailable")
		return models.Message{}, unavailable(err)
	}
	observability.IncAppend("ok")

	// The message is durable at this point; watchers that miss the
	// notification pick it up on their next poll.
	if err := r.feed.Publish(ctx, feed.Notification{RoomID: msg.RoomID, ID: msg.ID}); err != nil {
		observability.IncFeedPublishError()
		r.logger.Warn().Err(err).Str("room_id", msg.RoomID).Int64("message_id", msg.ID).Msg("feed publish failed")
	}
	return msg, nil
}

func (r *MessageRepo) byCorrelation(ctx context.Context, tx *sqlx.Tx, roomID, correlationID string) (models.Message, error) {
	var msg models.Message
	err := tx.GetContext(ctx, &msg, tx.Rebind(selectMessage+` WHERE room_id=? AND correlation_id=?`), roomID, correlationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ReadRange returns up to limit messages of roomID with id > afterID in ascending order.
func (r *MessageRepo) ReadRange(ctx context.Context, roomID string, afterID int64, limit int) ([]models.Message, error) {
	limit = clampLimit(limit)
	msgs := make([]models.Message, 0)
	err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(selectMessage+` WHERE room_id=? AND id > ? ORDER BY id ASC LIMIT ?`), roomID, afterID, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	return msgs, nil
}

// LastID returns the highest id appended to roomID, or 0 for an empty room.
func (r *MessageRepo) LastID(ctx context.Context, roomID string) (int64, error) {
	id, err := lastMessageID(ctx, r.db, roomID)
	return id, unavailable(err)
}

// Watch attaches to the change feed for roomID. ctx bounds the attach only;
// the returned Watcher lives until Close.
func (r *MessageRepo) Watch(ctx context.Context, roomID string, afterID int64) (Watcher, error) {
	sub, err := r.feed.Subscribe(ctx, roomID)
	if err != nil {
		return nil, unavailable(err)
	}
	return newWatcher(r, sub, roomID, afterID), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRangeLimit
	}
	if limit > MaxRangeLimit {
		return MaxRangeLimit
	}
	return limit
}
