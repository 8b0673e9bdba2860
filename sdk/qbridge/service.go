package qbridge

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/qbridge-dev/qbridge/internal/api"
	"github.com/qbridge-dev/qbridge/internal/auth"
	"github.com/qbridge-dev/qbridge/internal/auth/saml"
	"github.com/qbridge-dev/qbridge/internal/aws/kendra"
	"github.com/qbridge-dev/qbridge/internal/aws/qbusiness"
	"github.com/qbridge-dev/qbridge/internal/aws/session"
	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/constant"
	"github.com/qbridge-dev/qbridge/internal/mcp"
	"github.com/qbridge-dev/qbridge/internal/usage"
	"github.com/qbridge-dev/qbridge/internal/util"
	"github.com/qbridge-dev/qbridge/internal/watcher"
	log "github.com/sirupsen/logrus"
)

// Version is reported by the MCP server handshake.
const Version = "1.0.0"

// Service wraps the qbridge server lifecycle.
type Service struct {
	cfg        *config.Config
	cfgMu      sync.RWMutex
	configPath string
	hooks      Hooks
	usage      *usage.Manager
	stats      *usage.Stats

	store        *auth.Store
	samlProvider *saml.Provider
	server       *api.Server
	serverErr    chan error

	watcher       *watcher.Watcher
	watcherCancel context.CancelFunc

	shutdownOnce sync.Once
}

// Run starts the service and blocks until the context is cancelled or the
// web server stops.
func (s *Service) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("qbridge: service is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	defer func() {
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Errorf("service shutdown returned error: %v", err)
		}
	}()

	authDir, err := util.ResolveAuthDir(s.cfg.AuthDir)
	if err != nil {
		return fmt.Errorf("qbridge: failed to resolve auth directory: %w", err)
	}
	s.store, err = auth.NewStore(authDir)
	if err != nil {
		return fmt.Errorf("qbridge: failed to open auth directory: %w", err)
	}

	// Usage pipeline: the stats plugin feeds the management API, the
	// logger plugin mirrors records into the debug log.
	s.stats = usage.NewStats()
	s.usage.Register(s.stats)
	s.usage.Start(ctx)

	s.samlProvider = s.buildSAMLProvider(authDir)

	s.server = api.NewServer(s.cfg, api.Options{
		Store:          s.store,
		SAML:           s.samlProvider,
		Usage:          s.usage,
		Stats:          s.stats,
		ConfigFilePath: s.configPath,
	})

	if s.hooks.OnBeforeStart != nil {
		s.hooks.OnBeforeStart(s.cfg)
	}

	s.serverErr = make(chan error, 1)
	go func() {
		log.Infof("starting web server on port %d", s.cfg.Port)
		s.serverErr <- s.server.Start()
	}()

	if s.hooks.OnAfterStart != nil {
		s.hooks.OnAfterStart(s)
	}

	if s.cfg.MCP.Enabled {
		if mcpServer := s.buildMCPServer(ctx); mcpServer != nil {
			go func() {
				if errRun := mcpServer.Run(ctx); errRun != nil {
					log.Errorf("MCP server stopped: %v", errRun)
				}
			}()
		}
	}

	w, err := watcher.NewWatcher(s.configPath, s.store, func(records []auth.TokenRecord, newCfg *config.Config) {
		log.Debugf("reload: %d stored credentials", len(records))
		if newCfg == nil {
			return
		}
		s.server.UpdateConfig(newCfg)
		s.cfgMu.Lock()
		s.cfg = newCfg
		s.cfgMu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("qbridge: failed to create watcher: %w", err)
	}
	s.watcher = w
	w.SetConfig(s.cfg)

	watcherCtx, watcherCancel := context.WithCancel(context.Background())
	s.watcherCancel = watcherCancel
	if err = w.Start(watcherCtx); err != nil {
		return fmt.Errorf("qbridge: failed to start watcher: %w", err)
	}
	log.Info("file watcher started for config and auth directory changes")

	select {
	case <-ctx.Done():
		log.Debug("service context cancelled, shutting down...")
		return ctx.Err()
	case err = <-s.serverErr:
		return err
	}
}

// Shutdown gracefully stops background workers and the servers.
func (s *Service) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}

		if s.watcherCancel != nil {
			s.watcherCancel()
		}
		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				log.Errorf("failed to stop file watcher: %v", err)
				shutdownErr = err
			}
		}

		if s.server != nil {
			stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := s.server.Stop(stopCtx); err != nil {
				log.Errorf("error stopping web server: %v", err)
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		if s.samlProvider != nil {
			if err := s.samlProvider.Store().Close(); err != nil {
				log.Debugf("error closing SAML session store: %v", err)
			}
		}

		s.usage.Stop()
	})
	return shutdownErr
}

// Config returns the current configuration.
func (s *Service) Config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Store returns the credential store backing the service.
func (s *Service) Store() *auth.Store {
	return s.store
}

// buildSAMLProvider builds the SAML service provider when IdP metadata is
// configured; the SAML routes stay disabled otherwise.
func (s *Service) buildSAMLProvider(authDir string) *saml.Provider {
	if s.cfg.SAML.IDPMetadataURL == "" && s.cfg.SAML.IDPMetadataFile == "" {
		return nil
	}
	sessionStore, err := saml.OpenStore(filepath.Join(authDir, "saml-sessions.db"))
	if err != nil {
		log.Errorf("failed to open SAML session store: %v", err)
		return nil
	}
	provider, err := saml.NewProvider(s.cfg, sessionStore)
	if err != nil {
		log.Errorf("failed to initialize SAML service provider: %v", err)
		_ = sessionStore.Close()
		return nil
	}
	return provider
}

// buildMCPServer wires the AWS-backed tools. The identity-aware
// configuration is best effort: without a usable TVM the tools run on the
// base credentials.
func (s *Service) buildMCPServer(ctx context.Context) *mcp.Server {
	baseCfg, err := session.Load(ctx, s.cfg)
	if err != nil {
		log.Errorf("failed to load AWS configuration, MCP tools disabled: %v", err)
		return nil
	}

	identityCfg := baseCfg
	if s.cfg.TVM.Issuer != "" {
		email := s.cfg.TVM.Email
		if email == "" {
			if record, errLatest := s.store.Latest(constant.Okta); errLatest == nil {
				email = record.Email
			}
		}
		if idCfg, errIdentity := session.LoadIdentityAware(ctx, s.cfg, email); errIdentity == nil {
			identityCfg = idCfg
		} else {
			log.Warnf("identity-aware AWS credentials unavailable, using base credentials: %v", errIdentity)
		}
	}

	return mcp.NewServer(s.cfg, Version, mcp.Options{
		Kendra:    kendra.NewService(baseCfg),
		QBusiness: qbusiness.NewService(baseCfg, identityCfg),
		Store:     s.store,
		Usage:     s.usage,
	})
}
