// Package api provides the HTTP server for the qbridge identity flows.
// It hosts the Okta OAuth 2.0 web flow, the SAML service-provider endpoints,
// the Salesforce connected-app flow, and the management API, all on one Gin
// engine. The server supports hot-reloading of its configuration.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	managementHandlers "github.com/qbridge-dev/qbridge/internal/api/handlers/management"
	"github.com/qbridge-dev/qbridge/internal/api/middleware"
	"github.com/qbridge-dev/qbridge/internal/auth"
	"github.com/qbridge-dev/qbridge/internal/auth/okta"
	"github.com/qbridge-dev/qbridge/internal/auth/salesforce"
	"github.com/qbridge-dev/qbridge/internal/auth/saml"
	"github.com/qbridge-dev/qbridge/internal/client"
	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/logging"
	"github.com/qbridge-dev/qbridge/internal/usage"
	"github.com/qbridge-dev/qbridge/internal/util"
	log "github.com/sirupsen/logrus"
)

// stateTTL bounds how long an issued OAuth state parameter stays redeemable.
const stateTTL = 10 * time.Minute

// flowState carries the per-authorization secrets between the login redirect
// and the provider callback, keyed by the state parameter.
type flowState struct {
	pkce      *okta.PKCECodes
	verifier  string
	createdAt time.Time
}

// Options carries the collaborators the server publishes over HTTP.
type Options struct {
	// Store provides access to the persisted provider tokens.
	Store *auth.Store

	// SAML is the service-provider side of the SAML flow. The SAML routes
	// are not registered when it is nil.
	SAML *saml.Provider

	// Usage receives a record per handled request and auth event. The
	// default manager is used when nil.
	Usage *usage.Manager

	// Stats backs the management API usage snapshot endpoint.
	Stats *usage.Stats

	// ConfigFilePath is the YAML config file management updates persist to.
	ConfigFilePath string
}

// Server represents the qbridge web server.
// It encapsulates the Gin engine, HTTP server, auth services, and configuration.
type Server struct {
	// engine is the Gin web framework engine instance.
	engine *gin.Engine

	// server is the underlying HTTP server.
	server *http.Server

	// cfg holds the current server configuration.
	cfg *config.Config

	// store holds the persisted provider tokens.
	store *auth.Store

	// oktaAuth drives the Okta OAuth web flow and token lifecycle calls.
	oktaAuth *okta.OktaAuth

	// sfAuth drives the Salesforce connected-app flow.
	sfAuth *salesforce.SalesforceAuth

	// samlProvider serves the SAML SP endpoints, nil when not configured.
	samlProvider *saml.Provider

	// usage receives request and auth flow records.
	usage *usage.Manager

	// requestLogger is the request logger instance for dynamic configuration updates.
	requestLogger *logging.FileRequestLogger

	// mgmt serves the management API.
	mgmt *managementHandlers.Handler

	// flows tracks in-flight authorization states across both OAuth flows.
	flowMu sync.Mutex
	flows  map[string]flowState

	// sessions maps web session IDs to the Salesforce token file they landed in.
	sessionMu sync.RWMutex
	sessions  map[string]string
}

// NewServer creates and initializes a new web server instance.
// It sets up the Gin engine, middleware, routes, and handlers.
func NewServer(cfg *config.Config, opts Options) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())

	requestLogger := logging.NewFileRequestLogger(cfg.RequestLog, "logs")
	engine.Use(middleware.RequestLoggingMiddleware(requestLogger))

	engine.Use(corsMiddleware())

	usageManager := opts.Usage
	if usageManager == nil {
		usageManager = usage.DefaultManager()
	}

	s := &Server{
		engine:        engine,
		cfg:           cfg,
		store:         opts.Store,
		oktaAuth:      okta.NewOktaAuth(cfg),
		sfAuth:        salesforce.NewSalesforceAuth(cfg),
		samlProvider:  opts.SAML,
		usage:         usageManager,
		requestLogger: requestLogger,
		flows:         make(map[string]flowState),
		sessions:      make(map[string]string),
	}
	s.mgmt = managementHandlers.NewHandler(managementHandlers.Options{
		Config:         cfg,
		ConfigFilePath: opts.ConfigFilePath,
		Store:          opts.Store,
		Stats:          opts.Stats,
		Admin:          newOktaAdmin(cfg),
	})

	engine.Use(s.usageMiddleware())

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: engine,
	}

	return s
}

// newOktaAdmin builds the management API client when an API token is
// configured, nil otherwise.
func newOktaAdmin(cfg *config.Config) *client.OktaAdmin {
	admin, err := client.NewOktaAdmin(cfg)
	if err != nil {
		log.Debugf("okta management API disabled: %v", err)
		return nil
	}
	return admin
}

// setupRoutes configures the routes for the server.
// It defines the endpoints and associates them with their respective handlers.
func (s *Server) setupRoutes() {
	s.engine.GET("/", s.handleIndex)

	// Okta OAuth 2.0 web flow and token lifecycle
	s.engine.GET("/login", s.handleOktaLogin)
	s.engine.GET("/authorization-code/callback", s.handleOktaCallback)
	s.engine.GET("/profile", s.handleProfile)
	s.engine.GET("/refresh", s.handleRefresh)
	s.engine.GET("/revoke", s.handleRevoke)
	s.engine.GET("/introspect", s.handleIntrospect)
	s.engine.GET("/logout", s.handleLogout)

	// SAML service provider
	if s.samlProvider != nil {
		s.engine.GET(saml.MetadataPath, s.handleSAMLMetadata)
		s.engine.GET(saml.LoginPath, s.handleSAMLLogin)
		s.engine.POST(saml.ACSPath, s.handleSAMLACS)
		s.engine.GET(saml.LogoutPath, s.handleSAMLLogout)
	}

	// Salesforce connected app
	s.engine.GET("/auth/salesforce/login", s.handleSalesforceLogin)
	s.engine.GET("/auth/salesforce/callback", s.handleSalesforceCallback)
	s.engine.GET("/api/tokens/:session", s.handleSessionTokens)

	// Management API routes (delegated to management handlers)
	// If the secret key is empty, no management endpoint is exposed (404).
	if s.cfg.RemoteManagement.SecretKey != "" {
		mgmt := s.engine.Group("/v0/management")
		mgmt.Use(s.mgmt.Middleware())
		{
			mgmt.GET("/config", s.mgmt.GetConfig)

			mgmt.GET("/debug", s.mgmt.GetDebug)
			mgmt.PUT("/debug", s.mgmt.PutDebug)
			mgmt.PATCH("/debug", s.mgmt.PutDebug)

			mgmt.GET("/request-log", s.mgmt.GetRequestLog)
			mgmt.PUT("/request-log", s.mgmt.PutRequestLog)
			mgmt.PATCH("/request-log", s.mgmt.PutRequestLog)

			mgmt.GET("/proxy-url", s.mgmt.GetProxyURL)
			mgmt.PUT("/proxy-url", s.mgmt.PutProxyURL)
			mgmt.PATCH("/proxy-url", s.mgmt.PutProxyURL)
			mgmt.DELETE("/proxy-url", s.mgmt.DeleteProxyURL)

			mgmt.GET("/usage", s.mgmt.GetUsage)

			mgmt.GET("/auth-files", s.mgmt.ListAuthFiles)
			mgmt.GET("/auth-files/download", s.mgmt.DownloadAuthFile)
			mgmt.POST("/auth-files", s.mgmt.UploadAuthFile)
			mgmt.PATCH("/auth-files/disabled", s.mgmt.SetAuthFileDisabled)
			mgmt.DELETE("/auth-files", s.mgmt.DeleteAuthFile)

			mgmt.GET("/okta/users", s.mgmt.ListOktaUsers)
			mgmt.POST("/okta/users", s.mgmt.CreateOktaUser)
			mgmt.GET("/okta/users/:id", s.mgmt.GetOktaUser)
			mgmt.POST("/okta/users/:id", s.mgmt.UpdateOktaUser)
			mgmt.POST("/okta/users/:id/deactivate", s.mgmt.DeactivateOktaUser)
			mgmt.DELETE("/okta/users/:id", s.mgmt.DeleteOktaUser)

			mgmt.GET("/okta/apps", s.mgmt.ListOktaApplications)
			mgmt.GET("/okta/apps/:id", s.mgmt.GetOktaApplication)
			mgmt.GET("/okta/apps/:id/users", s.mgmt.ListOktaApplicationUsers)
			mgmt.PUT("/okta/apps/:id/users/:userId", s.mgmt.AssignOktaUserToApplication)
		}
	}
}

// handleIndex serves the landing page linking the configured login flows.
func (s *Server) handleIndex(c *gin.Context) {
	page := `<h1>qbridge</h1>
<p><a href="/login">Login with Okta</a></p>
`
	if s.samlProvider != nil {
		page += `<p><a href="/saml/login">Login with Okta (SAML)</a></p>
`
	}
	page += `<p><a href="/auth/salesforce/login">Login with Salesforce</a></p>
`
	s.renderHTML(c, http.StatusOK, page)
}

// renderHTML writes a small HTML page. The flow pages are deliberately plain.
func (s *Server) renderHTML(c *gin.Context, status int, body string) {
	c.Data(status, "text/html; charset=utf-8", []byte(body))
}

// usageMiddleware publishes one record per handled request.
func (s *Server) usageMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		name := c.FullPath()
		if name == "" {
			name = c.Request.URL.Path
		}
		s.usage.Publish(c.Request.Context(), usage.Record{
			Kind:        usage.KindHTTP,
			Name:        fmt.Sprintf("%s %s", c.Request.Method, name),
			Success:     c.Writer.Status() < http.StatusInternalServerError,
			Duration:    time.Since(start),
			RequestedAt: start,
		})
	}
}

// recordAuthEvent publishes a usage record for a flow milestone.
func (s *Server) recordAuthEvent(ctx context.Context, name, provider string, start time.Time, err error) {
	s.usage.Publish(ctx, usage.Record{
		Kind:        usage.KindAuth,
		Name:        name,
		Provider:    provider,
		Success:     err == nil,
		Duration:    time.Since(start),
		RequestedAt: start,
	})
}

// putFlowState stores a pending authorization state, pruning expired entries.
func (s *Server) putFlowState(state string, fs flowState) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	for key, entry := range s.flows {
		if time.Since(entry.createdAt) > stateTTL {
			delete(s.flows, key)
		}
	}
	fs.createdAt = time.Now()
	s.flows[state] = fs
}

// takeFlowState redeems a pending authorization state. A state can be
// redeemed once; unknown or expired states return false.
func (s *Server) takeFlowState(state string) (flowState, bool) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	entry, ok := s.flows[state]
	if !ok {
		return flowState{}, false
	}
	delete(s.flows, state)
	if time.Since(entry.createdAt) > stateTTL {
		return flowState{}, false
	}
	return entry, true
}

// Start begins listening for and serving HTTP requests.
// It's a blocking call and will only return on an unrecoverable error.
func (s *Server) Start() error {
	log.Debugf("starting web server on %s", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the web server without interrupting any
// active connections.
func (s *Server) Stop(ctx context.Context) error {
	log.Debug("stopping web server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	log.Debug("web server stopped")
	return nil
}

// corsMiddleware returns a Gin middleware handler that adds CORS headers
// to every response, allowing cross-origin requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Management-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// UpdateConfig swaps the server's configuration after a reload.
// The auth services are rebuilt so endpoint and credential changes take
// effect without a restart.
func (s *Server) UpdateConfig(cfg *config.Config) {
	if s.requestLogger != nil && s.cfg.RequestLog != cfg.RequestLog {
		s.requestLogger.SetEnabled(cfg.RequestLog)
		log.Debugf("request logging updated from %t to %t", s.cfg.RequestLog, cfg.RequestLog)
	}

	if s.cfg.Debug != cfg.Debug {
		util.SetLogLevel(cfg)
		log.Debugf("debug mode updated from %t to %t", s.cfg.Debug, cfg.Debug)
	}

	s.cfg = cfg
	s.oktaAuth = okta.NewOktaAuth(cfg)
	s.sfAuth = salesforce.NewSalesforceAuth(cfg)
	if s.mgmt != nil {
		s.mgmt.SetConfig(cfg)
		s.mgmt.SetAdmin(newOktaAdmin(cfg))
	}

	log.Info("server configuration updated")
}
