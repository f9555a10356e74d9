package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", 2)
	tok, expires, err := m.GenerateToken("admin", "ADMIN")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), expires, time.Minute)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "ADMIN", claims.Role)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, _, err := NewJWTManager("one", 1).GenerateToken("admin", "ADMIN")
	require.NoError(t, err)

	_, err = NewJWTManager("two", 1).VerifyToken(tok)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", 1)
	m.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	tok, _, err := m.GenerateToken("admin", "ADMIN")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.VerifyToken(tok)
	assert.Error(t, err)
}
