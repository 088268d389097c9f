package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localnerve/proposaldb/internal/types"
)

func TestJWTVerifier(t *testing.T) {
	assert.Nil(t, NewJWTVerifier(""))

	v := NewJWTVerifier("test-secret")
	token, err := v.Issue(reviewer, time.Minute)
	require.NoError(t, err)

	actor, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, reviewer, actor)

	t.Run("other secret", func(t *testing.T) {
		_, err := NewJWTVerifier("other").Verify(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		old, err := v.Issue(owner, -time.Minute)
		require.NoError(t, err)
		_, err = v.Verify(old)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("missing subject", func(t *testing.T) {
		anon, err := v.Issue(&types.Actor{Roles: []string{"admin"}}, time.Minute)
		require.NoError(t, err)
		_, err = v.Verify(anon)
		assert.ErrorContains(t, err, "missing subject")
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		claims := ActorClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = v.Verify(signed)
		assert.Error(t, err)
	})
}
