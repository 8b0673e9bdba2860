// Package management provides the management API handlers and middleware
// for configuring the server, inspecting stored tokens, and driving the
// Okta management API.
package management

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/qbridge-dev/qbridge/internal/auth"
	"github.com/qbridge-dev/qbridge/internal/client"
	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/usage"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Options carries the collaborators the management handlers expose.
type Options struct {
	// Config is the live configuration the endpoints read and mutate.
	Config *config.Config

	// ConfigFilePath is where mutations are persisted. Updates stay
	// in-memory only when it is empty.
	ConfigFilePath string

	// Store provides the token files behind the auth-files endpoints.
	Store *auth.Store

	// Stats backs the usage snapshot endpoint.
	Stats *usage.Stats

	// Admin is the Okta management API client, nil when no API token is
	// configured.
	Admin *client.OktaAdmin
}

// Handler aggregates config reference, persistence path and helpers.
type Handler struct {
	cfg            *config.Config
	configFilePath string
	store          *auth.Store
	stats          *usage.Stats
	admin          *client.OktaAdmin
	mu             sync.Mutex
}

// NewHandler creates a new management handler instance.
func NewHandler(opts Options) *Handler {
	return &Handler{
		cfg:            opts.Config,
		configFilePath: opts.ConfigFilePath,
		store:          opts.Store,
		stats:          opts.Stats,
		admin:          opts.Admin,
	}
}

// SetConfig updates the in-memory config reference when the server hot-reloads.
func (h *Handler) SetConfig(cfg *config.Config) { h.cfg = cfg }

// SetAdmin swaps the Okta management API client after a config reload.
func (h *Handler) SetAdmin(admin *client.OktaAdmin) { h.admin = admin }

// Middleware enforces access control for management endpoints.
// All requests must present the management key, which is compared against the
// configured bcrypt hash.
func (h *Handler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := h.cfg.RemoteManagement.SecretKey
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "management key not set"})
			return
		}

		// Accept either Authorization: Bearer <key> or X-Management-Key
		var provided string
		if ah := c.GetHeader("Authorization"); ah != "" {
			parts := strings.SplitN(ah, " ", 2)
			if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
				provided = parts[1]
			} else {
				provided = ah
			}
		}
		if provided == "" {
			provided = c.GetHeader("X-Management-Key")
		}
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing management key"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(secret), []byte(provided)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid management key"})
			return
		}

		c.Next()
	}
}

// GetConfig returns the full configuration with credentials masked.
func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, redactedConfig(h.cfg))
}

// redactedConfig copies the config and masks every secret-bearing field.
func redactedConfig(cfg *config.Config) *config.Config {
	redacted := *cfg
	mask := func(value string) string {
		if value == "" {
			return ""
		}
		return "***"
	}
	redacted.RemoteManagement.SecretKey = mask(cfg.RemoteManagement.SecretKey)
	redacted.Okta.ClientSecret = mask(cfg.Okta.ClientSecret)
	redacted.Okta.APIToken = mask(cfg.Okta.APIToken)
	redacted.Salesforce.ClientSecret = mask(cfg.Salesforce.ClientSecret)
	redacted.TVM.ClientSecret = mask(cfg.TVM.ClientSecret)
	redacted.AWS.SecretAccessKey = mask(cfg.AWS.SecretAccessKey)
	redacted.AWS.SessionToken = mask(cfg.AWS.SessionToken)
	return &redacted
}

// persist saves the current in-memory config to disk.
func (h *Handler) persist(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.configFilePath == "" {
		log.Debug("no config file path set, update kept in memory")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	if err := config.SaveConfig(h.configFilePath, h.cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to save config: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Helper methods for simple types
func (h *Handler) updateBoolField(c *gin.Context, set func(bool)) {
	var body struct {
		Value *bool `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	set(*body.Value)
	h.persist(c)
}

func (h *Handler) updateStringField(c *gin.Context, set func(string)) {
	var body struct {
		Value *string `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	set(*body.Value)
	h.persist(c)
}
