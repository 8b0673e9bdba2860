package api

import (
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qbridge-dev/qbridge/internal/auth/saml"
	"github.com/qbridge-dev/qbridge/internal/constant"
	log "github.com/sirupsen/logrus"
)

// handleSAMLMetadata serves the SP entity descriptor.
func (s *Server) handleSAMLMetadata(c *gin.Context) {
	metadata, err := s.samlProvider.Metadata()
	if err != nil {
		c.String(http.StatusInternalServerError, "Error rendering SP metadata: %v", err)
		return
	}
	c.Data(http.StatusOK, "text/xml", metadata)
}

// handleSAMLLogin starts the SP-initiated flow by redirecting the browser to
// the IdP with a fresh AuthnRequest.
func (s *Server) handleSAMLLogin(c *gin.Context) {
	loginURL, err := s.samlProvider.LoginURL("/profile")
	if err != nil {
		c.String(http.StatusInternalServerError, "Error initiating SAML authentication: %v", err)
		return
	}
	c.Redirect(http.StatusFound, loginURL)
}

// handleSAMLACS consumes the IdP's POSTed response, establishes the session,
// and follows the relay state.
func (s *Server) handleSAMLACS(c *gin.Context) {
	if c.PostForm("SAMLResponse") == "" {
		c.String(http.StatusBadRequest, "No SAML response received")
		return
	}

	start := time.Now()
	session, err := s.samlProvider.ConsumeResponse(c.Request)
	s.recordAuthEvent(c.Request.Context(), "saml-acs", constant.OktaSAML, start, err)
	if err != nil {
		c.String(http.StatusBadRequest, "Error processing SAML response: %v", err)
		return
	}
	log.Infof("saml session established for %s", session.NameID)

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetCookie(saml.SessionCookieName, session.ID, maxAge, "/", "", false, true)

	relayState := c.PostForm("RelayState")
	if !strings.HasPrefix(relayState, "/") || strings.HasPrefix(relayState, "//") {
		relayState = "/"
	}
	c.Redirect(http.StatusFound, relayState)
}

// handleSAMLLogout clears the local session and, when the IdP publishes an
// SLO endpoint, forwards the browser there.
func (s *Server) handleSAMLLogout(c *gin.Context) {
	nameID := ""
	if session := s.samlSession(c); session != nil {
		nameID = session.NameID
	}
	s.clearSAMLSession(c)

	if nameID != "" {
		logoutURL, err := s.samlProvider.LogoutURL(nameID, "/")
		if err != nil {
			log.Debugf("failed to build SLO redirect: %v", err)
		} else if logoutURL != "" {
			c.Redirect(http.StatusFound, logoutURL)
			return
		}
	}

	s.renderHTML(c, http.StatusOK, `<h1>Logged Out</h1>
<p>Your local session has been cleared.</p>
<p><a href="/">Return to Home</a></p>
`)
}

// samlSession resolves the session cookie to a live session, nil otherwise.
func (s *Server) samlSession(c *gin.Context) *saml.Session {
	if s.samlProvider == nil {
		return nil
	}
	sessionID, err := c.Cookie(saml.SessionCookieName)
	if err != nil || sessionID == "" {
		return nil
	}
	session, err := s.samlProvider.Store().GetSession(sessionID)
	if err != nil {
		return nil
	}
	return session
}

// clearSAMLSession removes the stored session and expires the cookie.
func (s *Server) clearSAMLSession(c *gin.Context) {
	if s.samlProvider == nil {
		return
	}
	if sessionID, err := c.Cookie(saml.SessionCookieName); err == nil && sessionID != "" {
		if errDelete := s.samlProvider.Store().DeleteSession(sessionID); errDelete != nil {
			log.Debugf("failed to delete saml session: %v", errDelete)
		}
	}
	c.SetCookie(saml.SessionCookieName, "", -1, "/", "", false, true)
}

// renderSAMLProfile displays the attributes and session details the
// assertion carried.
func (s *Server) renderSAMLProfile(c *gin.Context, session *saml.Session) {
	var b strings.Builder
	b.WriteString(`<h1>User Profile (SAML)</h1>
<h2>User Information</h2>
<table border="1">
<tr><th>Attribute</th><th>Value</th></tr>
`)
	for name, values := range session.Attributes {
		b.WriteString(fmt.Sprintf("<tr><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(name), html.EscapeString(strings.Join(values, ", "))))
	}
	b.WriteString(`</table>
<h2>SAML Session Information</h2>
<table border="1">
<tr><th>Property</th><th>Value</th></tr>
`)
	b.WriteString(fmt.Sprintf("<tr><td>name_id</td><td>%s</td></tr>\n", html.EscapeString(session.NameID)))
	b.WriteString(fmt.Sprintf("<tr><td>session_index</td><td>%s</td></tr>\n", html.EscapeString(session.SessionIndex)))
	b.WriteString(fmt.Sprintf("<tr><td>created_at</td><td>%s</td></tr>\n", session.CreatedAt.Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("<tr><td>expires_at</td><td>%s</td></tr>\n", session.ExpiresAt.Format(time.RFC3339)))
	b.WriteString(`</table>
<p><a href="/saml/logout">Logout</a></p>
`)
	s.renderHTML(c, http.StatusOK, b.String())
}
