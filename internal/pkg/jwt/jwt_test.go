package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken("u1", "a@b.com", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "a@b.com", claims.Email)
	require.Equal(t, "a@b.com", claims.Subject)
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("u1", "", []byte("one"), time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(token, []byte("two"))
	require.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken("u1", "", secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(token, secret)
	require.Error(t, err)
}

func TestParseToken_MissingUser(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken("", "a@b.com", secret, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(token, secret)
	require.Error(t, err)
}
