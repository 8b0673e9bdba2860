// Package salesforce implements the Salesforce OAuth 2.0 authorization-code
// flow with PKCE against a connected app, built on golang.org/x/oauth2. The
// instance URL returned alongside the tokens is captured because every
// Salesforce API call, including the userinfo endpoint, is served from it.
package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/util"
	"golang.org/x/oauth2"
)

const callbackPath = "/auth/salesforce/callback"

// UserInfo is the subset of the Salesforce userinfo response the application
// uses.
type UserInfo struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	DisplayName    string `json:"display_name"`
	Email          string `json:"email"`
	Username       string `json:"preferred_username"`
}

// SalesforceAuth handles the Salesforce OAuth2 authentication flow
type SalesforceAuth struct {
	conf       *oauth2.Config
	httpClient *http.Client
}

// NewSalesforceAuth creates a new Salesforce authentication service from the
// configuration.
func NewSalesforceAuth(cfg *config.Config) *SalesforceAuth {
	return &SalesforceAuth{
		conf: &oauth2.Config{
			ClientID:     cfg.Salesforce.ClientID,
			ClientSecret: cfg.Salesforce.ClientSecret,
			RedirectURL:  cfg.BaseURL() + callbackPath,
			Scopes:       cfg.Salesforce.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   fmt.Sprintf("https://%s/services/oauth2/authorize", cfg.Salesforce.Domain),
				TokenURL:  fmt.Sprintf("https://%s/services/oauth2/token", cfg.Salesforce.Domain),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: util.SetProxy(cfg, &http.Client{Timeout: 30 * time.Second}),
	}
}

// RedirectURI returns the redirect URI registered for the flow.
func (s *SalesforceAuth) RedirectURI() string {
	return s.conf.RedirectURL
}

// GenerateVerifier creates a new PKCE code verifier.
func (s *SalesforceAuth) GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// GenerateAuthURL creates the OAuth authorization URL with the S256 challenge
// derived from the verifier.
func (s *SalesforceAuth) GenerateAuthURL(state, verifier string) string {
	return s.conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// ExchangeCodeForTokens exchanges an authorization code for access tokens.
func (s *SalesforceAuth) ExchangeCodeForTokens(ctx context.Context, code, verifier string) (*SalesforceTokenStorage, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	token, err := s.conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	storage := storageFromToken(token)
	if storage.InstanceURL == "" {
		return nil, fmt.Errorf("token response carried no instance_url")
	}

	if info, errInfo := s.FetchUserInfo(ctx, storage.AccessToken, storage.InstanceURL); errInfo == nil {
		storage.Email = info.Email
	}
	return storage, nil
}

// RefreshTokens obtains a new token set using the refresh token. The previous
// refresh token and instance URL are kept when the response omits them.
func (s *SalesforceAuth) RefreshTokens(ctx context.Context, stored *SalesforceTokenStorage) (*SalesforceTokenStorage, error) {
	if stored == nil || stored.RefreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	// An expired token forces TokenSource to hit the refresh grant.
	seed := &oauth2.Token{
		RefreshToken: stored.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}
	token, err := s.conf.TokenSource(ctx, seed).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	storage := storageFromToken(token)
	if storage.RefreshToken == "" {
		storage.RefreshToken = stored.RefreshToken
	}
	if storage.InstanceURL == "" {
		storage.InstanceURL = stored.InstanceURL
	}
	storage.Email = stored.Email
	return storage, nil
}

// FetchUserInfo fetches the userinfo document from the token's instance.
func (s *SalesforceAuth) FetchUserInfo(ctx context.Context, accessToken, instanceURL string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, instanceURL+"/services/oauth2/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var info UserInfo
	if err = json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse userinfo response: %w", err)
	}
	return &info, nil
}

// storageFromToken builds a token storage from an oauth2 token, lifting the
// Salesforce extras out of the raw response.
func storageFromToken(token *oauth2.Token) *SalesforceTokenStorage {
	storage := &SalesforceTokenStorage{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		LastRefresh:  time.Now().Format(time.RFC3339),
	}
	if instanceURL, ok := token.Extra("instance_url").(string); ok {
		storage.InstanceURL = instanceURL
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		storage.IDToken = idToken
	}
	if scope, ok := token.Extra("scope").(string); ok {
		storage.Scope = scope
	}
	if !token.Expiry.IsZero() {
		storage.ExpiresAt = token.Expiry.Format(time.RFC3339)
	}
	return storage
}
