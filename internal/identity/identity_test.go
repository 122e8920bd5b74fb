package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/emaamul/core/internal/errors"
)

func TestTracker_SetNotifiesSubscribers(t *testing.T) {
	tr := NewTracker("")
	changes, cancel := tr.Subscribe()
	defer cancel()

	assert.True(t, tr.Set("u1"))
	assert.False(t, tr.Set("u1"))
	assert.Equal(t, "u1", tr.Current())

	select {
	case c := <-changes:
		assert.Equal(t, Change{Previous: "", Current: "u1"}, c)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
}

func TestTracker_slowSubscriberSeesLatest(t *testing.T) {
	tr := NewTracker("")
	changes, cancel := tr.Subscribe()
	defer cancel()

	tr.Set("u1")
	tr.Set("u2")
	tr.SignOut()

	c := <-changes
	assert.Equal(t, "", c.Current)
	assert.Equal(t, "u2", c.Previous)
}

func TestTracker_cancelClosesChannel(t *testing.T) {
	tr := NewTracker("u1")
	changes, cancel := tr.Subscribe()
	cancel()
	cancel()

	_, open := <-changes
	assert.False(t, open)
	assert.True(t, tr.Set("u2"), "set after cancel must not block")
}

func TestParseToken(t *testing.T) {
	secret := []byte("s3cret")

	token, err := IssueToken("user-42", secret, time.Hour)
	require.NoError(t, err)
	id, err := ParseToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "user-42", id)

	_, err = ParseToken(token, []byte("other"))
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidToken))

	expired, err := IssueToken("user-42", secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, secret)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidToken))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = ParseToken("not-a-token", secret)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidToken))

	_, err = ParseToken(token, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidToken))
}

func TestParseToken_requiresSubject(t *testing.T) {
	secret := []byte("s3cret")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)
	require.NoError(t, err)

	_, err = ParseToken(token, secret)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidToken))
}
