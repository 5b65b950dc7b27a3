package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReservationKeys(t *testing.T) {
	require.Equal(t, "username/alice", UsernameReservation("alice").ID)
	require.Equal(t, "email/a@x.com", EmailReservation("a@x.com").ID)
	// empty email still produces a claim
	require.Equal(t, "email/", EmailReservation("").ID)
}

func TestUserJSONHidesSecrets(t *testing.T) {
	u := &User{ID: "u1", Username: "alice", PasswordHash: "h", PasswordSalt: "s", Version: 3}
	b, err := json.Marshal(u)
	require.NoError(t, err)
	require.NotContains(t, string(b), "passwordHash")
	require.NotContains(t, string(b), "passwordSalt")
	require.NotContains(t, string(b), "version")
	require.Contains(t, string(b), `"username":"alice"`)
}

func TestUserCloneIsDeep(t *testing.T) {
	now := time.Now().UTC()
	u := &User{Username: "alice", DateLastLogin: &now}
	c := u.Clone()
	later := now.Add(time.Hour)
	*c.DateLastLogin = later
	c.Username = "bob"

	require.Equal(t, "alice", u.Username)
	require.True(t, u.DateLastLogin.Equal(now))
	require.Nil(t, (*User)(nil).Clone())
}
