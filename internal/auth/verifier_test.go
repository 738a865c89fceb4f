package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTokenRoundTrip(t *testing.T) {
	v := NewVerifier("secret", "chromechat")
	token, err := v.Issue(Identity{UserID: "u1", Username: "alice", Email: "a@example.com"}, time.Hour)
	require.NoError(t, err)

	id, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Username: "alice", Email: "a@example.com"}, id)
}

func TestValidateTokenFallsBackToSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u9",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	id, err := NewVerifier("secret", "").ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u9", id.UserID)
}

func TestValidateTokenRejects(t *testing.T) {
	ctx := context.Background()
	v := NewVerifier("secret", "")

	_, err := v.ValidateToken(ctx, "")
	assert.ErrorIs(t, err, ErrMissingToken)

	other, _ := NewVerifier("other", "").Issue(Identity{UserID: "u1"}, time.Hour)
	_, err = v.ValidateToken(ctx, other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, _ := v.Issue(Identity{UserID: "u1"}, -time.Minute)
	_, err = v.ValidateToken(ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noUser, _ := v.Issue(Identity{}, time.Hour)
	_, err = v.ValidateToken(ctx, noUser)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer")
	assert.False(t, ok)
}
