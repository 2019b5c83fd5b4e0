package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager(t *testing.T) {
	const hostID = "5e0f7a26-0000-0000-0000-000000000001"
	const email = "host@example.com"

	t.Run("Round Trip", func(t *testing.T) {
		m := NewJWTManager("test-secret", time.Hour)

		token, err := m.GenerateAccessToken(hostID, email)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		claims, err := m.ParseAndValidate(token)
		require.NoError(t, err)
		assert.Equal(t, hostID, claims.HostID)
		assert.Equal(t, email, claims.Email)
		assert.Equal(t, hostID, claims.Subject)
	})

	t.Run("Expired Token Rejected", func(t *testing.T) {
		m := NewJWTManager("test-secret", -time.Minute)

		token, err := m.GenerateAccessToken(hostID, email)
		require.NoError(t, err)

		_, err = m.ParseAndValidate(token)
		assert.Error(t, err)
	})

	t.Run("Wrong Secret Rejected", func(t *testing.T) {
		issuer := NewJWTManager("issuer-secret", time.Hour)
		verifier := NewJWTManager("other-secret", time.Hour)

		token, err := issuer.GenerateAccessToken(hostID, email)
		require.NoError(t, err)

		_, err = verifier.ParseAndValidate(token)
		assert.Error(t, err)
	})

	t.Run("Garbage Token Rejected", func(t *testing.T) {
		m := NewJWTManager("test-secret", time.Hour)

		_, err := m.ParseAndValidate("not.a.jwt")
		assert.Error(t, err)
	})
}
