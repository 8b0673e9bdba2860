package okta

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// OAuthError represents an OAuth-specific error response from the
// authorization server.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	StatusCode  int    `json:"-"`
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("OAuth error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("OAuth error: %s", e.Code)
}

// AuthenticationError represents authentication-related errors
type AuthenticationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Common authentication error types
var (
	ErrTokenExpired = &AuthenticationError{
		Type:    "token_expired",
		Message: "Access token has expired",
		Code:    http.StatusUnauthorized,
	}

	ErrInvalidState = &AuthenticationError{
		Type:    "invalid_state",
		Message: "OAuth state parameter is invalid",
		Code:    http.StatusBadRequest,
	}

	ErrNoToken = &AuthenticationError{
		Type:    "no_token",
		Message: "No stored token found, run the login flow first",
		Code:    http.StatusUnauthorized,
	}
)

// parseOAuthError turns a non-200 token endpoint response into an *OAuthError
// when the body carries the standard error JSON, or a plain error otherwise.
func parseOAuthError(statusCode int, body []byte) error {
	var oauthErr OAuthError
	if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Code != "" {
		oauthErr.StatusCode = statusCode
		return &oauthErr
	}
	return fmt.Errorf("request failed with status %d: %s", statusCode, string(body))
}
