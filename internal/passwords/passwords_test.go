package passwords

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateRandomSalt(t *testing.T) {
	s1, err := CreateRandomSalt()
	require.NoError(t, err)
	s2, err := CreateRandomSalt()
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(s1)
	require.NoError(t, err)
	require.Len(t, raw, SaltSize)
	require.NotEqual(t, s1, s2)
}

func TestHashPasswordDeterministic(t *testing.T) {
	salt, err := CreateRandomSalt()
	require.NoError(t, err)

	require.Equal(t, HashPassword("Passw0rd!", salt), HashPassword("Passw0rd!", salt))
	require.NotEqual(t, HashPassword("Passw0rd!", salt), HashPassword("passw0rd!", salt))
}

func TestHashPasswordSaltSensitive(t *testing.T) {
	s1, err := CreateRandomSalt()
	require.NoError(t, err)
	s2, err := CreateRandomSalt()
	require.NoError(t, err)

	require.NotEqual(t, HashPassword("Passw0rd!", s1), HashPassword("Passw0rd!", s2))
}

func TestHashPasswordNeverCleartext(t *testing.T) {
	salt, err := CreateRandomSalt()
	require.NoError(t, err)
	h := HashPassword("Passw0rd!", salt)
	require.NotContains(t, h, "Passw0rd!")
}

func TestMatches(t *testing.T) {
	salt, err := CreateRandomSalt()
	require.NoError(t, err)
	hash := HashPassword("Passw0rd!", salt)

	require.True(t, Matches("Passw0rd!", salt, hash))
	require.False(t, Matches("wrong", salt, hash))
	require.False(t, Matches("Passw0rd!", salt, ""))

	// non-base64 salts are still usable
	require.True(t, Matches("x", "not base64!", HashPassword("x", "not base64!")))
}
