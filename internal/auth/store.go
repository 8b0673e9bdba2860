// Package auth manages the credential files shared by the login flows,
// the web server and the MCP tools. Each provider package owns its own
// token format; this package only knows the common envelope fields
// (type, email, expiry) and the layout of the auth directory.
package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/qbridge-dev/qbridge/internal/interfaces"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// TokenRecord summarizes one stored credential file.
type TokenRecord struct {
	// Path is the absolute path of the token file.
	Path string `json:"path"`

	// Provider is the value of the file's "type" field, e.g. "okta".
	Provider string `json:"provider"`

	// Email is the account the token belongs to, when recorded.
	Email string `json:"email"`

	// Expired reports whether the stored expiry has passed.
	Expired bool `json:"expired"`

	// Disabled marks files excluded from lookup by the management API.
	Disabled bool `json:"disabled"`

	// ModTime is the file's last modification time.
	ModTime time.Time `json:"mod_time"`
}

// Store provides concurrency-safe access to the auth directory.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// NewStore creates the auth directory if needed and returns a store
// rooted at it.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("auth directory is empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create auth directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store operates on.
func (s *Store) Dir() string {
	return s.dir
}

// FilePath returns the canonical token file path for a provider and
// account email.
func (s *Store) FilePath(provider, email string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.json", provider, sanitizeEmail(email)))
}

// SaveToken persists a provider token storage under the store's naming
// scheme and returns the path it was written to.
func (s *Store) SaveToken(ts interfaces.TokenStorage, provider, email string) (string, error) {
	path := s.FilePath(provider, email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ts.SaveTokenToFile(path); err != nil {
		return "", err
	}
	return path, nil
}

// List returns a record for every readable token file in the directory,
// newest first.
func (s *Store) List() ([]TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth directory: %w", err)
	}

	var records []TokenRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, errRead := os.ReadFile(path)
		if errRead != nil {
			continue
		}
		info, errInfo := entry.Info()
		if errInfo != nil {
			continue
		}
		records = append(records, TokenRecord{
			Path:     path,
			Provider: gjson.GetBytes(data, "type").String(),
			Email:    gjson.GetBytes(data, "email").String(),
			Expired:  isExpired(gjson.GetBytes(data, "expires_at").String()),
			Disabled: gjson.GetBytes(data, "disabled").Bool(),
			ModTime:  info.ModTime(),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ModTime.After(records[j].ModTime)
	})
	return records, nil
}

// Latest returns the newest enabled token file for the given provider.
func (s *Store) Latest(provider string) (TokenRecord, error) {
	records, err := s.List()
	if err != nil {
		return TokenRecord{}, err
	}
	for _, record := range records {
		if record.Provider == provider && !record.Disabled {
			return record, nil
		}
	}
	return TokenRecord{}, fmt.Errorf("no stored credential for provider %q", provider)
}

// Read returns the raw contents of a token file inside the store.
func (s *Store) Read(path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resolved, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	return data, nil
}

// Write stores raw token JSON at the given path inside the store.
func (s *Store) Write(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved, err := s.resolve(path)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("token file content is not valid JSON")
	}
	if err = os.WriteFile(resolved, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// SetDisabled flips the disabled flag on a token file without touching
// the rest of its contents.
func (s *Store) SetDisabled(path string, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved, err := s.resolve(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("failed to read token file: %w", err)
	}
	updated, err := sjson.SetBytes(data, "disabled", disabled)
	if err != nil {
		return fmt.Errorf("failed to update token file: %w", err)
	}
	if err = os.WriteFile(resolved, updated, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Delete removes a token file from the store.
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err = os.Remove(resolved); err != nil {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

// resolve confines path lookups to the store directory. Bare file names
// are joined onto it; absolute paths must already live inside it.
func (s *Store) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("token file path is empty")
	}
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(s.dir, candidate)
	}
	candidate = filepath.Clean(candidate)
	dir := filepath.Clean(s.dir)
	if candidate != dir && !strings.HasPrefix(candidate, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("token file path %q escapes auth directory", path)
	}
	return candidate, nil
}

func isExpired(expiresAt string) bool {
	if expiresAt == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return true
	}
	return time.Now().After(t)
}

func sanitizeEmail(email string) string {
	if email == "" {
		return "account"
	}
	var b strings.Builder
	for _, r := range email {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_' || r == '@':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
