package saml

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "saml.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestRequestTracking(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.TrackRequest("id-1"))
	require.NoError(t, store.TrackRequest("id-2"))

	ids, err := store.PendingRequestIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"id-1", "id-2"}, ids)

	require.NoError(t, store.ConsumeRequest("id-1"))
	ids, err = store.PendingRequestIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"id-2"}, ids)
}

func TestTrackRequestRejectsEmptyID(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.TrackRequest(""))
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)

	attributes := map[string][]string{
		"email":  {"user@example.com"},
		"groups": {"Everyone", "Engineering"},
	}
	session, err := store.CreateSession("user@example.com", "idx-42", attributes)
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)

	loaded, err := store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", loaded.NameID)
	assert.Equal(t, "idx-42", loaded.SessionIndex)
	assert.Equal(t, attributes, loaded.Attributes)
	assert.True(t, loaded.ExpiresAt.After(loaded.CreatedAt))

	require.NoError(t, store.DeleteSession(session.ID))
	_, err = store.GetSession(session.ID)
	assert.Error(t, err)
}

func TestGetSessionUnknownID(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetSession("nope")
	assert.Error(t, err)
}
