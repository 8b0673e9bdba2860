package okta

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth", "okta-user@example.com.json")

	ts := &OktaTokenStorage{
		AccessToken:  "at-123",
		RefreshToken: "rt-456",
		IDToken:      "id-789",
		TokenType:    "Bearer",
		Scope:        "openid profile email",
		ExpiresAt:    time.Now().Add(time.Hour).Format(time.RFC3339),
		Email:        "user@example.com",
	}
	require.NoError(t, ts.SaveTokenToFile(path))

	loaded, err := LoadTokenFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "at-123", loaded.AccessToken)
	assert.Equal(t, "rt-456", loaded.RefreshToken)
	assert.Equal(t, "id-789", loaded.IDToken)
	assert.Equal(t, "okta", loaded.Type)
	assert.Equal(t, "user@example.com", loaded.Email)
}

func TestLoadTokenFileMissing(t *testing.T) {
	_, err := LoadTokenFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt string
		expired   bool
	}{
		{"empty expiry", "", true},
		{"unparsable expiry", "not-a-time", true},
		{"expired an hour ago", time.Now().Add(-time.Hour).Format(time.RFC3339), true},
		{"expires within the skew window", time.Now().Add(30 * time.Second).Format(time.RFC3339), true},
		{"expires well in the future", time.Now().Add(time.Hour).Format(time.RFC3339), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := &OktaTokenStorage{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.expired, ts.Expired())
		})
	}
}
