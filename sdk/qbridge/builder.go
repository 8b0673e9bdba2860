// Package qbridge wraps the server lifecycle so external programs can embed
// the qbridge service: the web server hosting the login flows and the
// management API, the MCP tool server, and the file watcher that hot-reloads
// configuration and token changes.
package qbridge

import (
	"fmt"

	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/usage"
)

// Builder constructs a Service instance with customizable dependencies.
type Builder struct {
	cfg        *config.Config
	configPath string
	hooks      Hooks
	usage      *usage.Manager
}

// Hooks allows callers to plug into service lifecycle stages.
type Hooks struct {
	OnBeforeStart func(*config.Config)
	OnAfterStart  func(*Service)
}

// NewBuilder creates a Builder with default dependencies left unset.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the configuration instance used by the service.
func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	b.cfg = cfg
	return b
}

// WithConfigPath sets the configuration file path used for reload watching
// and management API persistence.
func (b *Builder) WithConfigPath(path string) *Builder {
	b.configPath = path
	return b
}

// WithHooks registers lifecycle hooks executed around service startup.
func (b *Builder) WithHooks(h Hooks) *Builder {
	b.hooks = h
	return b
}

// WithUsageManager overrides the usage manager that tool invocations and
// auth events are published to.
func (b *Builder) WithUsageManager(m *usage.Manager) *Builder {
	b.usage = m
	return b
}

// Build validates inputs, applies defaults, and returns a ready-to-run service.
func (b *Builder) Build() (*Service, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("qbridge: configuration is required")
	}
	if b.configPath == "" {
		return nil, fmt.Errorf("qbridge: configuration path is required")
	}

	usageManager := b.usage
	if usageManager == nil {
		usageManager = usage.DefaultManager()
	}

	return &Service{
		cfg:        b.cfg,
		configPath: b.configPath,
		hooks:      b.hooks,
		usage:      usageManager,
	}, nil
}
