package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useMemoryKeyring(t *testing.T) {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	prev := open
	open = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { open = prev })
}

func TestSetGetDelete(t *testing.T) {
	useMemoryKeyring(t)

	require.NoError(t, Set(APITokenKey, "tok-123"))

	got, err := Get(APITokenKey)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", got)

	require.NoError(t, Delete(APITokenKey))
	_, err = Get(APITokenKey)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, Delete(APITokenKey), "deleting a missing key is fine")
}
