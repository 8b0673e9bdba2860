package salesforce

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/qbridge-dev/qbridge/internal/misc"
)

const expirySkew = 60 * time.Second

// SalesforceTokenStorage holds the Salesforce token set persisted to the auth
// directory. InstanceURL points at the org the tokens are valid for and is
// required by every follow-up API call.
type SalesforceTokenStorage struct {
	// AccessToken is the OAuth2 access token for API access
	AccessToken string `json:"access_token"`
	// RefreshToken is used to obtain new access tokens
	RefreshToken string `json:"refresh_token"`
	// IDToken is the JWT ID token containing user claims
	IDToken string `json:"id_token"`
	// InstanceURL is the Salesforce instance the session belongs to
	InstanceURL string `json:"instance_url"`
	// TokenType is the token type reported by the token endpoint
	TokenType string `json:"token_type"`
	// Scope is the space-separated scope set granted by the server
	Scope string `json:"scope"`
	// ExpiresAt is the timestamp the access token expires at, empty when the
	// server reported no lifetime
	ExpiresAt string `json:"expires_at,omitempty"`
	// Email is the account e-mail from the userinfo endpoint
	Email string `json:"email"`
	// Type indicates the provider (okta, salesforce) of token storage.
	Type string `json:"type"`
	// LastRefresh is the timestamp of the last token refresh
	LastRefresh string `json:"last_refresh"`
}

// SaveTokenToFile serializes the token storage to a JSON file.
func (ts *SalesforceTokenStorage) SaveTokenToFile(authFilePath string) error {
	misc.LogSavingCredentials(authFilePath)
	ts.Type = "salesforce"
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
func LoadTokenFromFile(authFilePath string) (*SalesforceTokenStorage, error) {
	data, err := os.ReadFile(authFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var ts SalesforceTokenStorage
	if err = json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &ts, nil
}

// Expired reports whether the access token is past, or within one minute of,
// its recorded expiry. Salesforce sessions often carry no expiry; those only
// lapse server-side, so they count as live here.
func (ts *SalesforceTokenStorage) Expired() bool {
	if ts.ExpiresAt == "" {
		return false
	}
	expiresAt, err := time.Parse(time.RFC3339, ts.ExpiresAt)
	if err != nil {
		return true
	}
	return time.Now().After(expiresAt.Add(-expirySkew))
}
