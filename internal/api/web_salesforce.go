package api

import (
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qbridge-dev/qbridge/internal/constant"
	"github.com/qbridge-dev/qbridge/internal/misc"
	log "github.com/sirupsen/logrus"
)

// handleSalesforceLogin initiates the Salesforce connected-app flow.
func (s *Server) handleSalesforceLogin(c *gin.Context) {
	state, err := misc.GenerateRandomState()
	if err != nil {
		c.String(http.StatusInternalServerError, "Error initiating login: %v", err)
		return
	}
	verifier := s.sfAuth.GenerateVerifier()

	s.putFlowState(state, flowState{verifier: verifier})
	c.Redirect(http.StatusFound, s.sfAuth.GenerateAuthURL(state, verifier))
}

// handleSalesforceCallback exchanges the authorization code, persists the
// token set, and issues a web session ID the token JSON can be fetched under.
func (s *Server) handleSalesforceCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		s.renderHTML(c, http.StatusBadRequest, fmt.Sprintf("<h1>Error</h1><p>%s</p>", html.EscapeString(errParam)))
		return
	}

	code := c.Query("code")
	if code == "" {
		s.renderHTML(c, http.StatusBadRequest, "<h1>Error</h1><p>No authorization code received</p>")
		return
	}

	entry, ok := s.takeFlowState(c.Query("state"))
	if !ok || entry.verifier == "" {
		s.renderHTML(c, http.StatusBadRequest, "<h1>Error</h1><p>Invalid state parameter</p>")
		return
	}

	start := time.Now()
	storage, err := s.sfAuth.ExchangeCodeForTokens(c.Request.Context(), code, entry.verifier)
	s.recordAuthEvent(c.Request.Context(), "salesforce-exchange", constant.Salesforce, start, err)
	if err != nil {
		s.renderHTML(c, http.StatusBadRequest, fmt.Sprintf("<h1>Token Error</h1><p>%s</p>", html.EscapeString(err.Error())))
		return
	}

	authFilePath, err := s.store.SaveToken(storage, constant.Salesforce, storage.Email)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error saving tokens: %v", err)
		return
	}
	log.Infof("salesforce tokens saved for %s", storage.Email)

	sessionID, err := misc.GenerateURLSafeToken(16)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error creating session: %v", err)
		return
	}
	s.sessionMu.Lock()
	s.sessions[sessionID] = authFilePath
	s.sessionMu.Unlock()

	// Userinfo is decorative here; the tokens are already saved.
	info, errInfo := s.sfAuth.FetchUserInfo(c.Request.Context(), storage.AccessToken, storage.InstanceURL)
	if errInfo != nil {
		log.Debugf("salesforce userinfo fetch failed: %v", errInfo)
	}
	displayName, email, orgID := "User", "N/A", "N/A"
	if info != nil {
		if info.DisplayName != "" {
			displayName = info.DisplayName
		}
		if info.Email != "" {
			email = info.Email
		}
		if info.OrganizationID != "" {
			orgID = info.OrganizationID
		}
	}

	page := fmt.Sprintf(`<h1>Authentication Successful!</h1>
<p>Welcome, %s!</p>
<p>Email: %s</p>
<p>Organization: %s</p>
<h3>Tokens:</h3>
<p><strong>Access Token:</strong> %s</p>
<p><strong>Refresh Token:</strong> %s</p>
<p><strong>Instance URL:</strong> %s</p>
<br>
<a href="/api/tokens/%s">Get Tokens as JSON</a> |
<a href="/">Home</a>
`,
		html.EscapeString(displayName),
		html.EscapeString(email),
		html.EscapeString(orgID),
		html.EscapeString(tokenPreview(storage.AccessToken)),
		html.EscapeString(tokenPreview(storage.RefreshToken)),
		html.EscapeString(storage.InstanceURL),
		sessionID,
	)
	s.renderHTML(c, http.StatusOK, page)
}

// handleSessionTokens returns the token JSON behind a web session ID.
func (s *Server) handleSessionTokens(c *gin.Context) {
	s.sessionMu.RLock()
	path, ok := s.sessions[c.Param("session")]
	s.sessionMu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	data, err := s.store.Read(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// tokenPreview truncates a token for display, never the full credential.
func tokenPreview(token string) string {
	if token == "" {
		return "N/A"
	}
	if len(token) > 50 {
		return token[:50] + "..."
	}
	return token + "..."
}
