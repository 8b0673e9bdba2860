// Package client implements the Okta Management API client used by the
// management endpoints. All requests authenticate with an SSWS API
// token and speak JSON against the org's /api/v1 surface.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/util"
)

// defaultUserPageSize matches the page size the management handlers
// request when the caller does not specify one.
const defaultUserPageSize = 25

// APIError is a structured error returned by the Okta Management API.
type APIError struct {
	// StatusCode is the HTTP status of the failed request.
	StatusCode int `json:"-"`

	// ErrorCode is Okta's machine-readable error code, e.g. E0000007.
	ErrorCode string `json:"errorCode"`

	// ErrorSummary is the human-readable description of the failure.
	ErrorSummary string `json:"errorSummary"`

	// ErrorLink references Okta's documentation for the error code.
	ErrorLink string `json:"errorLink"`

	// ErrorID identifies this occurrence for support requests.
	ErrorID string `json:"errorId"`

	// ErrorCauses lists the individual validation failures, if any.
	ErrorCauses []APIErrorCause `json:"errorCauses"`
}

// APIErrorCause describes one contributing cause of an APIError.
type APIErrorCause struct {
	ErrorSummary string `json:"errorSummary"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("okta API error %s: %s (HTTP %d)", e.ErrorCode, e.ErrorSummary, e.StatusCode)
	}
	return fmt.Sprintf("okta API error: HTTP %d", e.StatusCode)
}

// OktaAdmin is a client for the Okta Management API.
type OktaAdmin struct {
	// httpClient is the HTTP client used for API requests.
	httpClient *http.Client

	// orgURL is the Okta org base URL, without a trailing slash.
	orgURL string

	// apiToken is the SSWS API token presented on every request.
	apiToken string
}

// NewOktaAdmin creates a management client from the configuration. The
// org URL and API token must both be configured.
func NewOktaAdmin(cfg *config.Config) (*OktaAdmin, error) {
	if cfg.Okta.OrgURL == "" {
		return nil, fmt.Errorf("okta org URL is not configured")
	}
	if cfg.Okta.APIToken == "" {
		return nil, fmt.Errorf("okta API token is not configured")
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	util.SetProxy(cfg, httpClient)
	return &OktaAdmin{
		httpClient: httpClient,
		orgURL:     cfg.Okta.OrgURL,
		apiToken:   cfg.Okta.APIToken,
	}, nil
}

// ListUsers returns up to limit users, optionally narrowed by an Okta
// search expression such as `profile.email eq "user@example.com"`.
func (c *OktaAdmin) ListUsers(ctx context.Context, search string, limit int) ([]User, error) {
	if limit <= 0 {
		limit = defaultUserPageSize
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if search != "" {
		query.Set("search", search)
	}
	var users []User
	if err := c.do(ctx, http.MethodGet, "/api/v1/users", query, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser fetches a single user by ID or login.
func (c *OktaAdmin) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(userID), nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates a user with the given profile and optional
// credentials. When activate is true the user is activated immediately.
func (c *OktaAdmin) CreateUser(ctx context.Context, profile UserProfile, credentials *UserCredentials, activate bool) (*User, error) {
	query := url.Values{}
	query.Set("activate", strconv.FormatBool(activate))
	body := map[string]interface{}{"profile": profile}
	if credentials != nil {
		body["credentials"] = credentials
	}
	var user User
	if err := c.do(ctx, http.MethodPost, "/api/v1/users", query, body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser performs a partial profile update on an existing user.
func (c *OktaAdmin) UpdateUser(ctx context.Context, userID string, profile UserProfile) (*User, error) {
	body := map[string]interface{}{"profile": profile}
	var user User
	if err := c.do(ctx, http.MethodPost, "/api/v1/users/"+url.PathEscape(userID), nil, body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeactivateUser transitions a user into the DEPROVISIONED state. Okta
// requires this before the user can be deleted.
func (c *OktaAdmin) DeactivateUser(ctx context.Context, userID string) error {
	path := "/api/v1/users/" + url.PathEscape(userID) + "/lifecycle/deactivate"
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// DeleteUser permanently removes a deactivated user.
func (c *OktaAdmin) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/users/"+url.PathEscape(userID), nil, nil, nil)
}

// ListApplications returns the org's applications, optionally narrowed
// by an Okta filter expression such as `status eq "ACTIVE"`.
func (c *OktaAdmin) ListApplications(ctx context.Context, filter string) ([]Application, error) {
	var query url.Values
	if filter != "" {
		query = url.Values{}
		query.Set("filter", filter)
	}
	var apps []Application
	if err := c.do(ctx, http.MethodGet, "/api/v1/apps", query, nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// GetApplication fetches a single application by ID.
func (c *OktaAdmin) GetApplication(ctx context.Context, appID string) (*Application, error) {
	var app Application
	if err := c.do(ctx, http.MethodGet, "/api/v1/apps/"+url.PathEscape(appID), nil, nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// ListApplicationUsers returns the users assigned to an application.
func (c *OktaAdmin) ListApplicationUsers(ctx context.Context, appID string) ([]AppUser, error) {
	path := "/api/v1/apps/" + url.PathEscape(appID) + "/users"
	var users []AppUser
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AssignUserToApplication assigns an existing user to an application
// with the USER scope.
func (c *OktaAdmin) AssignUserToApplication(ctx context.Context, appID, userID string) (*AppUser, error) {
	path := "/api/v1/apps/" + url.PathEscape(appID) + "/users"
	body := map[string]interface{}{"id": userID, "scope": "USER"}
	var assigned AppUser
	if err := c.do(ctx, http.MethodPost, path, nil, body, &assigned); err != nil {
		return nil, err
	}
	return &assigned, nil
}

// do executes one Management API request. A non-2xx response is
// returned as an *APIError when the body carries Okta's error shape.
func (c *OktaAdmin) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.orgURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "SSWS "+c.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if errUnmarshal := json.Unmarshal(respBody, apiErr); errUnmarshal != nil || apiErr.ErrorCode == "" {
			apiErr.ErrorSummary = string(respBody)
		}
		return apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err = json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}
	}
	return nil
}
