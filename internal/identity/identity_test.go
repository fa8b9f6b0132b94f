package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewVerifier("secret")

	token, err := v.Issue("alice", time.Hour)
	require.NoError(t, err)

	name, err := v.AuthorName(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestMissingTokenIsAnonymous(t *testing.T) {
	name, err := NewVerifier("secret").AuthorName("")
	require.NoError(t, err)
	assert.Equal(t, models.Anonymous, name)
}

func TestSubjectFallback(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "bob",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	name, err := NewVerifier("secret").AuthorName(token)
	require.NoError(t, err)
	assert.Equal(t, "bob", name)
}

func TestRejectsBadTokens(t *testing.T) {
	v := NewVerifier("secret")

	other, err := NewVerifier("other").Issue("mallory", time.Hour)
	require.NoError(t, err)
	_, err = v.AuthorName(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := v.Issue("alice", -time.Minute)
	require.NoError(t, err)
	_, err = v.AuthorName(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.AuthorName("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Issue(" ", time.Hour)
	assert.ErrorIs(t, err, ErrEmptyName)
}
