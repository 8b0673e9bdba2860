// Package okta implements the Okta OAuth 2.0 authorization-code flow with
// PKCE, plus the token lifecycle operations of the Okta authorization server:
// refresh, revocation, introspection, and the OIDC userinfo endpoint.
package okta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/util"
	log "github.com/sirupsen/logrus"
)

const callbackPath = "/authorization-code/callback"

// tokenResponse is the token endpoint payload for both the authorization-code
// and refresh-token grants.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
}

// IntrospectionResult is the introspection endpoint payload. Claims beyond
// Active are only present for active tokens.
type IntrospectionResult struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Iss       string `json:"iss,omitempty"`
}

// OktaAuth handles the Okta OAuth2 authentication flow
type OktaAuth struct {
	httpClient   *http.Client
	issuer       string
	clientID     string
	clientSecret string
	scopes       []string
	redirectURI  string
}

// NewOktaAuth creates a new Okta authentication service from the configuration.
func NewOktaAuth(cfg *config.Config) *OktaAuth {
	return &OktaAuth{
		httpClient:   util.SetProxy(cfg, &http.Client{Timeout: 30 * time.Second}),
		issuer:       cfg.OktaIssuer(),
		clientID:     cfg.Okta.ClientID,
		clientSecret: cfg.Okta.ClientSecret,
		scopes:       cfg.Okta.Scopes,
		redirectURI:  cfg.BaseURL() + callbackPath,
	}
}

// RedirectURI returns the redirect URI registered for the flow.
func (o *OktaAuth) RedirectURI() string {
	return o.redirectURI
}

// GenerateAuthURL creates the OAuth authorization URL with PKCE
func (o *OktaAuth) GenerateAuthURL(state string, pkceCodes *PKCECodes) (string, error) {
	if pkceCodes == nil {
		return "", fmt.Errorf("PKCE codes are required")
	}

	params := url.Values{
		"client_id":             {o.clientID},
		"response_type":         {"code"},
		"scope":                 {strings.Join(o.scopes, " ")},
		"redirect_uri":          {o.redirectURI},
		"state":                 {state},
		"code_challenge":        {pkceCodes.CodeChallenge},
		"code_challenge_method": {"S256"},
	}

	return fmt.Sprintf("%s/v1/authorize?%s", o.issuer, params.Encode()), nil
}

// ExchangeCodeForTokens exchanges an authorization code for access tokens
func (o *OktaAuth) ExchangeCodeForTokens(ctx context.Context, code string, pkceCodes *PKCECodes) (*OktaTokenStorage, error) {
	if pkceCodes == nil {
		return nil, fmt.Errorf("PKCE codes are required for token exchange")
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {o.redirectURI},
		"code_verifier": {pkceCodes.CodeVerifier},
	}

	tokenResp, err := o.postTokenEndpoint(ctx, "/v1/token", form)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	storage := o.storageFromResponse(tokenResp)
	if claims, errParse := ParseIDToken(tokenResp.IDToken); errParse == nil {
		storage.Email = claims.Email
	} else {
		log.Debugf("could not parse ID token claims: %v", errParse)
	}
	return storage, nil
}

// RefreshTokens obtains a new token set using the refresh token. When the
// response carries no refresh token the previous one remains valid and is
// kept in the returned storage.
func (o *OktaAuth) RefreshTokens(ctx context.Context, refreshToken string) (*OktaTokenStorage, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"scope":         {strings.Join(o.scopes, " ")},
	}

	tokenResp, err := o.postTokenEndpoint(ctx, "/v1/token", form)
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	storage := o.storageFromResponse(tokenResp)
	if storage.RefreshToken == "" {
		storage.RefreshToken = refreshToken
	}
	if claims, errParse := ParseIDToken(tokenResp.IDToken); errParse == nil {
		storage.Email = claims.Email
	}
	return storage, nil
}

// RevokeToken revokes an access or refresh token at the authorization server.
// hint names the token type being revoked, access_token or refresh_token.
func (o *OktaAuth) RevokeToken(ctx context.Context, token, hint string) error {
	form := url.Values{
		"token":           {token},
		"token_type_hint": {hint},
	}

	body, statusCode, err := o.postForm(ctx, o.issuer+"/v1/revoke", form)
	if err != nil {
		return fmt.Errorf("token revocation failed: %w", err)
	}
	if statusCode != http.StatusOK {
		return fmt.Errorf("token revocation failed: %w", parseOAuthError(statusCode, body))
	}
	return nil
}

// IntrospectToken asks the authorization server whether a token is active.
func (o *OktaAuth) IntrospectToken(ctx context.Context, token, hint string) (*IntrospectionResult, error) {
	form := url.Values{
		"token":           {token},
		"token_type_hint": {hint},
	}

	body, statusCode, err := o.postForm(ctx, o.issuer+"/v1/introspect", form)
	if err != nil {
		return nil, fmt.Errorf("token introspection failed: %w", err)
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("token introspection failed: %w", parseOAuthError(statusCode, body))
	}

	var result IntrospectionResult
	if err = json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse introspection response: %w", err)
	}
	return &result, nil
}

// UserInfo fetches the OIDC userinfo claims for the given access token.
func (o *OktaAuth) UserInfo(ctx context.Context, accessToken string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.issuer+"/v1/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
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
		return nil, fmt.Errorf("userinfo request failed: %w", parseOAuthError(resp.StatusCode, body))
	}

	var claims map[string]interface{}
	if err = json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse userinfo response: %w", err)
	}
	return claims, nil
}

// postTokenEndpoint posts a grant to the token endpoint and parses the response.
func (o *OktaAuth) postTokenEndpoint(ctx context.Context, path string, form url.Values) (*tokenResponse, error) {
	body, statusCode, err := o.postForm(ctx, o.issuer+path, form)
	if err != nil {
		return nil, err
	}
	if statusCode != http.StatusOK {
		return nil, parseOAuthError(statusCode, body)
	}

	var tokenResp tokenResponse
	if err = json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	return &tokenResp, nil
}

// postForm sends a form-encoded POST with client authentication attached.
// Confidential clients authenticate with HTTP Basic auth; public clients put
// their client_id in the form body.
func (o *OktaAuth) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	if o.clientSecret == "" {
		form.Set("client_id", o.clientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if o.clientSecret != "" {
		req.SetBasicAuth(o.clientID, o.clientSecret)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// storageFromResponse builds a token storage from a token endpoint response.
func (o *OktaAuth) storageFromResponse(tokenResp *tokenResponse) *OktaTokenStorage {
	now := time.Now()
	return &OktaTokenStorage{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		IDToken:      tokenResp.IDToken,
		TokenType:    tokenResp.TokenType,
		Scope:        tokenResp.Scope,
		ExpiresAt:    now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second).Format(time.RFC3339),
		LastRefresh:  now.Format(time.RFC3339),
	}
}
