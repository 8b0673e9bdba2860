package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTokenFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	expired := time.Now().Add(-time.Hour).Format(time.RFC3339)
	valid := time.Now().Add(time.Hour).Format(time.RFC3339)

	writeTokenFile(t, dir, "okta-old@example.com.json",
		`{"type":"okta","email":"old@example.com","expires_at":"`+expired+`"}`)
	writeTokenFile(t, dir, "okta-new@example.com.json",
		`{"type":"okta","email":"new@example.com","expires_at":"`+valid+`"}`)
	writeTokenFile(t, dir, "notes.txt", "not a token")

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)

	byEmail := map[string]TokenRecord{}
	for _, record := range records {
		byEmail[record.Email] = record
	}
	assert.True(t, byEmail["old@example.com"].Expired)
	assert.False(t, byEmail["new@example.com"].Expired)
	assert.Equal(t, "okta", byEmail["new@example.com"].Provider)
}

func TestStoreLatestSkipsDisabled(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	oldPath := writeTokenFile(t, dir, "okta-a@example.com.json",
		`{"type":"okta","email":"a@example.com"}`)
	newPath := writeTokenFile(t, dir, "okta-b@example.com.json",
		`{"type":"okta","email":"b@example.com"}`)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	record, err := store.Latest("okta")
	require.NoError(t, err)
	assert.Equal(t, newPath, record.Path)

	require.NoError(t, store.SetDisabled(newPath, true))
	record, err = store.Latest("okta")
	require.NoError(t, err)
	assert.Equal(t, oldPath, record.Path)

	require.NoError(t, store.SetDisabled(oldPath, true))
	_, err = store.Latest("okta")
	assert.Error(t, err)
}

func TestStoreSetDisabledPreservesFields(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	path := writeTokenFile(t, dir, "okta-a@example.com.json",
		`{"type":"okta","email":"a@example.com","access_token":"tok"}`)

	require.NoError(t, store.SetDisabled(path, true))
	data, err := store.Read(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"access_token":"tok"`)
	assert.Contains(t, string(data), `"disabled":true`)
}

func TestStoreResolveRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	_, err = store.Read("../outside.json")
	assert.Error(t, err)

	err = store.Delete(filepath.Join(dir, "..", "outside.json"))
	assert.Error(t, err)
}

func TestStoreWriteValidatesJSON(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Write("okta-a.json", []byte("not json")))
	require.NoError(t, store.Write("okta-a.json", []byte(`{"type":"okta"}`)))

	data, err := store.Read("okta-a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"okta"}`, string(data))
}

func TestStoreFilePath(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	path := store.FilePath("okta", "user+test@example.com")
	assert.Equal(t, filepath.Join(store.Dir(), "okta-user-test@example.com.json"), path)

	path = store.FilePath("salesforce", "")
	assert.Equal(t, filepath.Join(store.Dir(), "salesforce-account.json"), path)
}

type stubTokenStorage struct {
	payload string
}

func (s stubTokenStorage) SaveTokenToFile(path string) error {
	return os.WriteFile(path, []byte(s.payload), 0600)
}

func TestStoreSaveToken(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	path, err := store.SaveToken(stubTokenStorage{payload: `{"type":"okta"}`}, "okta", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, store.FilePath("okta", "a@example.com"), path)

	data, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"okta"}`, string(data))
}
