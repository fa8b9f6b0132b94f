package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/blob"
	"chat-sync/internal/db"
	"chat-sync/internal/feed"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
	"chat-sync/internal/session"
)

func newMockClient(limit int) (*Client, *mocks.MessageRepositoryMock, *mocks.UploaderMock) {
	store := &mocks.MessageRepositoryMock{}
	uploader := &mocks.UploaderMock{}
	limits := &mocks.LimitSourceMock{}
	limits.On("MessageLengthLimit", mock.Anything).Return(limit)
	return NewClient(store, uploader, nil, limits, nil, zerolog.Nop()), store, uploader
}

func TestSendTextAppendsDraft(t *testing.T) {
	c, store, _ := newMockClient(1000)
	store.On("Append", mock.Anything, mock.MatchedBy(func(d models.PendingMessage) bool {
		return d.RoomID == "general" && d.AuthorName == "alice" && d.Text == "hi" && d.CorrelationID != ""
	})).Return(models.Message{ID: 1, RoomID: "general", AuthorName: "alice", Text: "hi"}, nil)

	msg, err := c.SendText(context.Background(), "general", "alice", "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ID)
	store.AssertExpectations(t)
}

func TestSendTextDefaultsAnonymousAndCorrelationID(t *testing.T) {
	c, store, _ := newMockClient(0)
	store.On("Append", mock.Anything, mock.MatchedBy(func(d models.PendingMessage) bool {
		return d.AuthorName == models.Anonymous && d.CorrelationID == "token-1"
	})).Return(models.Message{ID: 7}, nil)

	_, err := c.SendText(context.Background(), "general", "  ", "hello", WithCorrelationID("token-1"))
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestSendTextRejectsBlank(t *testing.T) {
	c, store, _ := newMockClient(1000)

	_, err := c.SendText(context.Background(), "general", "alice", " \n\t")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	store.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestSendTextRejectsMissingRoom(t *testing.T) {
	c, store, _ := newMockClient(1000)

	_, err := c.SendText(context.Background(), "  ", "alice", "hi")
	assert.ErrorIs(t, err, models.ErrInvalidDraft)
	var failed *SendFailedError
	assert.False(t, errors.As(err, &failed))
	store.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestSendTextTooLongNeverAppends(t *testing.T) {
	c, store, _ := newMockClient(5)

	_, err := c.SendText(context.Background(), "general", "alice", "too long")
	assert.ErrorIs(t, err, ErrMessageTooLong)
	store.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)

	store.On("Append", mock.Anything, mock.Anything).Return(models.Message{ID: 1}, nil)
	_, err = c.SendText(context.Background(), "general", "alice", "héllo")
	assert.NoError(t, err, "limit counts characters, not bytes")
}

func TestSendTextStoreUnavailableIsSendFailed(t *testing.T) {
	c, store, _ := newMockClient(1000)
	store.On("Append", mock.Anything, mock.Anything).Return(nil, repositories.ErrStoreUnavailable)

	_, err := c.SendText(context.Background(), "general", "alice", "hi")
	var failed *SendFailedError
	require.ErrorAs(t, err, &failed)
	assert.ErrorIs(t, err, repositories.ErrStoreUnavailable)
}

func TestSendMediaAppendsUploadedURL(t *testing.T) {
	c, store, uploader := newMockClient(1000)
	payload := []byte("jpeg bytes")
	uploader.On("Upload", mock.Anything, payload, "cat.jpg").Return("http://chat.test/blobs/chat_photos/x-cat.jpg", nil)
	store.On("Append", mock.Anything, mock.MatchedBy(func(d models.PendingMessage) bool {
		return d.MediaURL == "http://chat.test/blobs/chat_photos/x-cat.jpg" && d.Text == ""
	})).Return(models.Message{ID: 3, MediaURL: "http://chat.test/blobs/chat_photos/x-cat.jpg"}, nil)

	msg, err := c.SendMedia(context.Background(), "general", "alice", payload, "cat.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(3), msg.ID)
	uploader.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestSendMediaUploadFailureNeverAppends(t *testing.T) {
	c, store, uploader := newMockClient(1000)
	uploadErr := &blob.UploadFailedError{Cause: errors.New("connection refused")}
	uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return("", uploadErr)

	_, err := c.SendMedia(context.Background(), "general", "alice", []byte("x"), "x.png")

	var failed *SendFailedError
	require.ErrorAs(t, err, &failed)
	var upload *blob.UploadFailedError
	assert.ErrorAs(t, failed.Cause, &upload)
	store.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestSendMediaRejectsMissingRoomBeforeUpload(t *testing.T) {
	c, _, uploader := newMockClient(1000)

	_, err := c.SendMedia(context.Background(), "", "alice", []byte("x"), "x.png")
	assert.ErrorIs(t, err, models.ErrInvalidDraft)
	uploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
}

func TestHistoryPassesThrough(t *testing.T) {
	c, store, _ := newMockClient(1000)
	store.On("ReadRange", mock.Anything, "general", int64(2), 10).Return([]models.Message{{ID: 3}}, nil)

	msgs, err := c.History(context.Background(), "general", 2, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestEndToEndScenario(t *testing.T) {
	database, err := db.Connect(context.Background(), "sqlite", filepath.Join(t.TempDir(), "chat.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	repo := repositories.NewMessageRepo(database, feed.NewMemory(), 50*time.Millisecond, zerolog.Nop())
	sessions := session.New(repo, session.DefaultConfig(), zerolog.Nop())
	t.Cleanup(sessions.Close)
	uploader := blob.NewUploader(repositories.NewBlobRepo(database), "http://chat.test", 0, zerolog.Nop())
	c := NewClient(repo, uploader, sessions, nil, nil, zerolog.Nop())
	ctx := context.Background()

	first, err := c.SendText(ctx, "general", "alice", "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)

	var mu sync.Mutex
	var got []models.Message
	sub, err := c.Subscribe("general", func(ev models.Event) {
		if ev.Message == nil {
			return
		}
		mu.Lock()
		got = append(got, *ev.Message)
		mu.Unlock()
	})
	require.NoError(t, err)
	received := func() []models.Message {
		mu.Lock()
		defer mu.Unlock()
		return append([]models.Message(nil), got...)
	}

	require.Eventually(t, func() bool { return len(received()) == 1 }, 3*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, received(), 1)

	second, err := c.SendText(ctx, "general", "bob", "yo")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.ID)

	media, err := c.SendMedia(ctx, "general", "alice", []byte("\x89PNG\r\n\x1a\n"), "cat.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(media.MediaURL, "http://chat.test/blobs/chat_photos/"))

	require.Eventually(t, func() bool { return len(received()) == 3 }, 3*time.Second, 5*time.Millisecond)
	msgs := received()
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, "yo", msgs[1].Text)
	assert.Equal(t, media.MediaURL, msgs[2].MediaURL)

	stored, err := uploader.Fetch(ctx, media.MediaURL)
	require.NoError(t, err)
	assert.Equal(t, "image/png", stored.ContentType)

	c.Unsubscribe(sub)
	assert.False(t, sub.Active())
}
