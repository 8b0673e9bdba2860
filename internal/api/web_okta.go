package api

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qbridge-dev/qbridge/internal/auth/okta"
	"github.com/qbridge-dev/qbridge/internal/constant"
	"github.com/qbridge-dev/qbridge/internal/misc"
	log "github.com/sirupsen/logrus"
)

// handleOktaLogin initiates the Okta OAuth 2.0 authorization-code flow.
// The PKCE verifier and state are kept server side until the callback.
func (s *Server) handleOktaLogin(c *gin.Context) {
	pkceCodes, err := okta.GeneratePKCECodes()
	if err != nil {
		c.String(http.StatusInternalServerError, "Error initiating login: %v", err)
		return
	}
	state, err := misc.GenerateRandomState()
	if err != nil {
		c.String(http.StatusInternalServerError, "Error initiating login: %v", err)
		return
	}

	authURL, err := s.oktaAuth.GenerateAuthURL(state, pkceCodes)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error initiating login: %v", err)
		return
	}

	s.putFlowState(state, flowState{pkce: pkceCodes})
	c.Redirect(http.StatusFound, authURL)
}

// handleOktaCallback handles the OAuth callback: it validates the state,
// exchanges the code, persists the token set, and sends the user to /profile.
func (s *Server) handleOktaCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		desc := c.Query("error_description")
		c.String(http.StatusBadRequest, "Error exchanging code for tokens: %s %s", errParam, desc)
		return
	}

	entry, ok := s.takeFlowState(c.Query("state"))
	if !ok || entry.pkce == nil {
		c.String(http.StatusBadRequest, "State mismatch. Possible CSRF attack.")
		return
	}

	code := c.Query("code")
	if code == "" {
		c.String(http.StatusBadRequest, "No authorization code received.")
		return
	}

	start := time.Now()
	storage, err := s.oktaAuth.ExchangeCodeForTokens(c.Request.Context(), code, entry.pkce)
	s.recordAuthEvent(c.Request.Context(), "okta-exchange", constant.Okta, start, err)
	if err != nil {
		c.String(http.StatusBadRequest, "Error exchanging code for tokens: %v", err)
		return
	}

	if _, err = s.store.SaveToken(storage, constant.Okta, storage.Email); err != nil {
		c.String(http.StatusInternalServerError, "Error saving tokens: %v", err)
		return
	}
	log.Infof("okta tokens saved for %s", storage.Email)

	c.Redirect(http.StatusFound, "/profile")
}

// handleProfile displays the authenticated user. A valid SAML session takes
// precedence; otherwise the stored Okta token backs an OIDC userinfo call.
func (s *Server) handleProfile(c *gin.Context) {
	if session := s.samlSession(c); session != nil {
		s.renderSAMLProfile(c, session)
		return
	}

	storage, _, err := s.loadOktaToken()
	if err != nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	userinfo, err := s.oktaAuth.UserInfo(c.Request.Context(), storage.AccessToken)
	if err != nil {
		c.String(http.StatusBadRequest, "Error getting user info: %v", err)
		return
	}

	claims, err := json.MarshalIndent(userinfo, "", "  ")
	if err != nil {
		c.String(http.StatusInternalServerError, "Error rendering user info: %v", err)
		return
	}

	page := fmt.Sprintf(`<h1>User Profile</h1>
<h2>User Information</h2>
<pre>%s</pre>
<h2>Tokens</h2>
<h3>Access Token</h3>
<pre>%s</pre>
<h3>ID Token</h3>
<pre>%s</pre>
<p><a href="/refresh">Refresh Tokens</a></p>
<p><a href="/revoke">Logout (Revoke Tokens)</a></p>
`,
		html.EscapeString(string(claims)),
		html.EscapeString(storage.AccessToken),
		html.EscapeString(storage.IDToken),
	)
	s.renderHTML(c, http.StatusOK, page)
}

// handleRefresh refreshes the stored token set and returns to the profile.
func (s *Server) handleRefresh(c *gin.Context) {
	storage, _, err := s.loadOktaToken()
	if err != nil {
		c.String(http.StatusBadRequest, "Error refreshing tokens. You may need to login again.")
		return
	}

	start := time.Now()
	refreshed, err := s.oktaAuth.RefreshTokens(c.Request.Context(), storage.RefreshToken)
	s.recordAuthEvent(c.Request.Context(), "okta-refresh", constant.Okta, start, err)
	if err != nil {
		log.Debugf("okta token refresh failed: %v", err)
		c.String(http.StatusBadRequest, "Error refreshing tokens. You may need to login again.")
		return
	}
	if refreshed.Email == "" {
		refreshed.Email = storage.Email
	}

	if _, err = s.store.SaveToken(refreshed, constant.Okta, refreshed.Email); err != nil {
		c.String(http.StatusInternalServerError, "Error saving tokens: %v", err)
		return
	}

	c.Redirect(http.StatusFound, "/profile")
}

// handleRevoke revokes the stored tokens at the authorization server.
func (s *Server) handleRevoke(c *gin.Context) {
	storage, _, err := s.loadOktaToken()
	if err != nil {
		c.String(http.StatusBadRequest, "No tokens to revoke.")
		return
	}

	start := time.Now()
	err = s.revokeStoredTokens(c, storage)
	s.recordAuthEvent(c.Request.Context(), "okta-revoke", constant.Okta, start, err)

	s.renderHTML(c, http.StatusOK, `<h1>Logged Out</h1>
<p>Your tokens have been revoked.</p>
<p><a href="/">Return to Home</a></p>
`)
}

// handleIntrospect reports whether the stored token is active.
// token_type_hint selects the access token (default) or the refresh token.
func (s *Server) handleIntrospect(c *gin.Context) {
	storage, _, err := s.loadOktaToken()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no stored token to introspect"})
		return
	}

	hint := c.DefaultQuery("token_type_hint", "access_token")
	token := storage.AccessToken
	if hint == "refresh_token" {
		token = storage.RefreshToken
	}
	if token == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no stored %s to introspect", hint)})
		return
	}

	result, err := s.oktaAuth.IntrospectToken(c.Request.Context(), token, hint)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("introspection failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleLogout revokes the stored tokens, removes the token file, and clears
// any SAML session cookie.
func (s *Server) handleLogout(c *gin.Context) {
	if storage, path, err := s.loadOktaToken(); err == nil {
		start := time.Now()
		errRevoke := s.revokeStoredTokens(c, storage)
		s.recordAuthEvent(c.Request.Context(), "okta-revoke", constant.Okta, start, errRevoke)
		if errDelete := s.store.Delete(path); errDelete != nil {
			log.Warnf("failed to remove token file: %v", errDelete)
		}
	}
	s.clearSAMLSession(c)

	s.renderHTML(c, http.StatusOK, `<h1>Logged Out</h1>
<p>Your local session has been cleared.</p>
<p><a href="/">Return to Home</a></p>
`)
}

// loadOktaToken loads the newest usable Okta token set from the store.
func (s *Server) loadOktaToken() (*okta.OktaTokenStorage, string, error) {
	record, err := s.store.Latest(constant.Okta)
	if err != nil {
		return nil, "", err
	}
	storage, err := okta.LoadTokenFromFile(record.Path)
	if err != nil {
		return nil, "", err
	}
	return storage, record.Path, nil
}

// revokeStoredTokens revokes the access and refresh tokens, best effort.
func (s *Server) revokeStoredTokens(c *gin.Context, storage *okta.OktaTokenStorage) error {
	var firstErr error
	if storage.AccessToken != "" {
		if err := s.oktaAuth.RevokeToken(c.Request.Context(), storage.AccessToken, "access_token"); err != nil {
			log.Debugf("access token revocation failed: %v", err)
			firstErr = err
		}
	}
	if storage.RefreshToken != "" {
		if err := s.oktaAuth.RevokeToken(c.Request.Context(), storage.RefreshToken, "refresh_token"); err != nil {
			log.Debugf("refresh token revocation failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
