package repositories

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/db"
	"chat-sync/internal/feed"
	"chat-sync/internal/models"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := db.Connect(context.Background(), "sqlite", filepath.Join(t.TempDir(), "chat.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func newTestRepo(t *testing.T) (*MessageRepo, *feed.Memory) {
	t.Helper()
	f := feed.NewMemory()
	return NewMessageRepo(newTestDB(t), f, 50*time.Millisecond, zerolog.Nop()), f
}

func appendText(t *testing.T, repo *MessageRepo, roomID, author, text string) models.Message {
	t.Helper()
	msg, err := repo.Append(context.Background(), models.PendingMessage{RoomID: roomID, AuthorName: author, Text: text})
	require.NoError(t, err)
	return msg
}

func TestAppendAssignsIncreasingIDsPerRoom(t *testing.T) {
	repo, _ := newTestRepo(t)

	for i := 1; i <= 5; i++ {
		msg := appendText(t, repo, "general", "alice", fmt.Sprintf("m%d", i))
		assert.Equal(t, int64(i), msg.ID)
		assert.False(t, msg.CreatedAt.IsZero())
	}
	other := appendText(t, repo, "random", "bob", "first")
	assert.Equal(t, int64(1), other.ID)

	msgs, err := repo.ReadRange(context.Background(), "general", 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, msg := range msgs {
		assert.Equal(t, int64(i+1), msg.ID)
		assert.Equal(t, fmt.Sprintf("m%d", i+1), msg.Text)
	}

	last, err := repo.LastID(context.Background(), "general")
	require.NoError(t, err)
	assert.Equal(t, int64(5), last)
}

func TestAppendDefaultsAnonymousAuthor(t *testing.T) {
	repo, _ := newTestRepo(t)

	msg := appendText(t, repo, "general", "", "hi")
	assert.Equal(t, models.Anonymous, msg.AuthorName)
}

func TestAppendIsIdempotentByCorrelationID(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	draft := models.PendingMessage{CorrelationID: "c-1", RoomID: "general", AuthorName: "alice", Text: "hi"}

	first, err := repo.Append(ctx, draft)
	require.NoError(t, err)
	second, err := repo.Append(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	msgs, err := repo.ReadRange(ctx, "general", 0, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestAppendRejectsInvalidDraft(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Append(context.Background(), models.PendingMessage{RoomID: "general", Text: "a", MediaURL: "b"})
	assert.ErrorIs(t, err, models.ErrInvalidDraft)

	last, err := repo.LastID(context.Background(), "general")
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestAppendOnClosedDatabaseIsUnavailable(t *testing.T) {
	database := newTestDB(t)
	repo := NewMessageRepo(database, feed.NewMemory(), 0, zerolog.Nop())
	require.NoError(t, database.Close())

	_, err := repo.Append(context.Background(), models.PendingMessage{RoomID: "general", Text: "hi"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = repo.ReadRange(context.Background(), "general", 0, 10)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestReadRangeAfterAndLimit(t *testing.T) {
	repo, _ := newTestRepo(t)
	for i := 0; i < 4; i++ {
		appendText(t, repo, "general", "alice", "x")
	}

	msgs, err := repo.ReadRange(context.Background(), "general", 1, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(2), msgs[0].ID)
	assert.Equal(t, int64(3), msgs[1].ID)

	msgs, err = repo.ReadRange(context.Background(), "general", 4, 10)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultRangeLimit, clampLimit(0))
	assert.Equal(t, MaxRangeLimit, clampLimit(10_000))
	assert.Equal(t, 7, clampLimit(7))
}

func collect(w Watcher) (<-chan models.Message, <-chan error) {
	msgs := make(chan models.Message, 100)
	errs := make(chan error, 1)
	go func() {
		defer close(msgs)
		for msg, err := range w.Messages() {
			if err != nil {
				errs <- err
				return
			}
			msgs <- msg
		}
	}()
	return msgs, errs
}

func receive(t *testing.T, msgs <-chan models.Message) models.Message {
	t.Helper()
	select {
	case msg, ok := <-msgs:
		require.True(t, ok, "watch ended early")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return models.Message{}
	}
}

func TestWatchReplaysBacklogThenFollowsAppends(t *testing.T) {
	repo, _ := newTestRepo(t)
	appendText(t, repo, "general", "alice", "one")
	appendText(t, repo, "general", "alice", "two")

	w, err := repo.Watch(context.Background(), "general", 0)
	require.NoError(t, err)
	defer w.Close()
	msgs, _ := collect(w)

	assert.Equal(t, int64(1), receive(t, msgs).ID)
	assert.Equal(t, int64(2), receive(t, msgs).ID)

	appendText(t, repo, "general", "bob", "three")
	live := receive(t, msgs)
	assert.Equal(t, int64(3), live.ID)
	assert.Equal(t, "three", live.Text)
}

func TestWatchStartsStrictlyAfterCursor(t *testing.T) {
	repo, _ := newTestRepo(t)
	appendText(t, repo, "general", "alice", "one")
	appendText(t, repo, "general", "alice", "two")

	w, err := repo.Watch(context.Background(), "general", 2)
	require.NoError(t, err)
	defer w.Close()
	msgs, _ := collect(w)

	appendText(t, repo, "general", "alice", "three")
	assert.Equal(t, int64(3), receive(t, msgs).ID)
}

func TestWatchYieldsUnavailableWhenFeedDrops(t *testing.T) {
	repo, f := newTestRepo(t)

	w, err := repo.Watch(context.Background(), "general", 0)
	require.NoError(t, err)
	defer w.Close()
	_, errs := collect(w)

	require.Eventually(t, func() bool { return f.Subscribers("general") == 1 }, time.Second, 10*time.Millisecond)
	f.Drop("general", errors.New("broker restarted"))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("expected watch error")
	}
}

func TestWatchCloseEndsIteration(t *testing.T) {
	repo, f := newTestRepo(t)

	w, err := repo.Watch(context.Background(), "general", 0)
	require.NoError(t, err)
	msgs, errs := collect(w)

	require.NoError(t, w.Close())
	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Empty(t, errs)
	assert.Equal(t, 0, f.Subscribers("general"))
}
