package okta

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/qbridge-dev/qbridge/internal/misc"
)

// expirySkew is subtracted from the stored expiry when deciding whether a
// token is still usable, so calls never go out with a token about to lapse.
const expirySkew = 60 * time.Second

// OktaTokenStorage holds the Okta token set persisted to the auth directory.
type OktaTokenStorage struct {
	// AccessToken is the OAuth2 access token for API access
	AccessToken string `json:"access_token"`
	// RefreshToken is used to obtain new access tokens
	RefreshToken string `json:"refresh_token"`
	// IDToken is the JWT ID token containing user claims
	IDToken string `json:"id_token"`
	// TokenType is the token type reported by the token endpoint, normally Bearer
	TokenType string `json:"token_type"`
	// Scope is the space-separated scope set granted by the server
	Scope string `json:"scope"`
	// ExpiresAt is the timestamp the access token expires at
	ExpiresAt string `json:"expires_at"`
	// Email is the account e-mail extracted from the ID token
	Email string `json:"email"`
	// Type indicates the provider (okta, salesforce) of token storage.
	Type string `json:"type"`
	// LastRefresh is the timestamp of the last token refresh
	LastRefresh string `json:"last_refresh"`
}

// SaveTokenToFile serializes the token storage to a JSON file.
func (ts *OktaTokenStorage) SaveTokenToFile(authFilePath string) error {
	misc.LogSavingCredentials(authFilePath)
	ts.Type = "okta"
	if err := os.MkdirAll(path.Dir(authFilePath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}

	f, err := os.Create(authFilePath)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err = json.NewEncoder(f).Encode(ts); err != nil {
		return fmt.Errorf("failed to write token to file: %w", err)
	}
	return nil
}

// LoadTokenFromFile reads a token storage from a JSON file.
func LoadTokenFromFile(authFilePath string) (*OktaTokenStorage, error) {
	data, err := os.ReadFile(authFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var ts OktaTokenStorage
	if err = json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &ts, nil
}

// Expired reports whether the access token is past, or within one minute of,
// its recorded expiry. A missing or unparsable expiry counts as expired.
func (ts *OktaTokenStorage) Expired() bool {
	if ts.ExpiresAt == "" {
		return true
	}
	expiresAt, err := time.Parse(time.RFC3339, ts.ExpiresAt)
	if err != nil {
		return true
	}
	return time.Now().After(expiresAt.Add(-expirySkew))
}
