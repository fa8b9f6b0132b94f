package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobRepoPutGet(t *testing.T) {
	repo := NewBlobRepo(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "chat_photos/a.png", []byte{1, 2, 3}, "image/png"))

	blob, err := repo.Get(ctx, "chat_photos/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, blob.Data)
	assert.Equal(t, "image/png", blob.ContentType)
	assert.Equal(t, int64(3), blob.Size)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	assert.Error(t, repo.Put(ctx, "chat_photos/a.png", []byte{4}, "image/png"))
}

func TestConfigRepoUpsert(t *testing.T) {
	repo := NewConfigRepo(newTestDB(t))
	ctx := context.Background()

	_, err := repo.GetValue(ctx, "friendly_msg_length")
	assert.ErrorIs(t, err, ErrConfigNotFound)

	require.NoError(t, repo.SetValue(ctx, "friendly_msg_length", "10"))
	require.NoError(t, repo.SetValue(ctx, "friendly_msg_length", "20"))

	value, err := repo.GetValue(ctx, "friendly_msg_length")
	require.NoError(t, err)
	assert.Equal(t, "20", value)
}
