package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashMatch(t *testing.T) {
	hash, err := Hash("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret", hash)
	require.True(t, Match(hash, "s3cret"))
	require.False(t, Match(hash, "wrong"))
	require.False(t, Match("not-a-hash", "s3cret"))
}

func TestHashRejectsLongInput(t *testing.T) {
	_, err := Hash(strings.Repeat("a", MaxLength+1))
	require.ErrorIs(t, err, ErrTooLong)

	_, err = Hash(strings.Repeat("a", MaxLength))
	require.NoError(t, err)
}
