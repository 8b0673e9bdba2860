// Package watcher provides file system monitoring for the qbridge server.
// It watches the configuration file and the authentication directory,
// reloading the configuration and republishing the stored-token inventory
// when files are modified. The package handles cross-platform file system
// events and supports hot-reloading.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/qbridge-dev/qbridge/internal/auth"
	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/misc"
	"github.com/qbridge-dev/qbridge/internal/util"
	log "github.com/sirupsen/logrus"
)

// ReloadCallback receives the current token inventory and configuration
// after the watcher observes a change.
type ReloadCallback func([]auth.TokenRecord, *config.Config)

// Watcher manages file watching for the configuration file and the
// authentication directory.
type Watcher struct {
	configPath     string
	authDir        string
	config         *config.Config
	store          *auth.Store
	mu             sync.RWMutex
	reloadCallback ReloadCallback
	watcher        *fsnotify.Watcher
	lastAuthHashes map[string]string
	lastConfigHash string
}

const (
	authFileReadMaxAttempts = 5
	authFileReadRetryDelay  = 100 * time.Millisecond
)

// NewWatcher creates a new file watcher instance.
func NewWatcher(configPath string, store *auth.Store, reloadCallback ReloadCallback) (*Watcher, error) {
	watcher, errNewWatcher := fsnotify.NewWatcher()
	if errNewWatcher != nil {
		return nil, errNewWatcher
	}

	return &Watcher{
		configPath:     configPath,
		authDir:        store.Dir(),
		store:          store,
		reloadCallback: reloadCallback,
		watcher:        watcher,
		lastAuthHashes: make(map[string]string),
	}, nil
}

// Start begins watching the configuration file and authentication directory.
func (w *Watcher) Start(ctx context.Context) error {
	if errAddConfig := w.watcher.Add(w.configPath); errAddConfig != nil {
		log.Errorf("failed to watch config file %s: %v", w.configPath, errAddConfig)
		return errAddConfig
	}
	log.Debugf("watching config file: %s", w.configPath)

	if errAddAuthDir := w.watcher.Add(w.authDir); errAddAuthDir != nil {
		log.Errorf("failed to watch auth directory %s: %v", w.authDir, errAddAuthDir)
		return errAddAuthDir
	}
	log.Debugf("watching auth directory: %s", w.authDir)

	w.snapshotAuthHashes()

	go w.processEvents(ctx)

	return nil
}

// Stop stops the file watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// SetConfig updates the current configuration.
func (w *Watcher) SetConfig(cfg *config.Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
}

// snapshotAuthHashes records the hash of every token file present when
// watching starts, so the first observed write only fires the callback
// when content actually changed.
func (w *Watcher) snapshotAuthHashes() {
	records, err := w.store.List()
	if err != nil {
		log.Debugf("failed to snapshot auth directory: %v", err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, record := range records {
		data, errRead := os.ReadFile(record.Path)
		if errRead != nil || len(data) == 0 {
			continue
		}
		sum := sha256.Sum256(data)
		w.lastAuthHashes[record.Path] = hex.EncodeToString(sum[:])
	}
}

// processEvents handles file system events.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case errWatch, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("file watcher error: %v", errWatch)
		}
	}
}

// handleEvent processes individual file system events.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Filter only relevant events: config file or auth-dir JSON files.
	isConfigEvent := event.Name == w.configPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create)
	isAuthJSON := strings.HasPrefix(event.Name, w.authDir) && strings.HasSuffix(event.Name, ".json")
	if !isConfigEvent && !isAuthJSON {
		return
	}

	log.Debugf("file system event detected: %s %s", event.Op.String(), event.Name)

	if isConfigEvent {
		data, err := os.ReadFile(w.configPath)
		if err != nil {
			log.Errorf("failed to read config file for hash check: %v", err)
			return
		}
		if len(data) == 0 {
			log.Debugf("ignoring empty config file write event")
			return
		}
		sum := sha256.Sum256(data)
		newHash := hex.EncodeToString(sum[:])

		w.mu.RLock()
		currentHash := w.lastConfigHash
		w.mu.RUnlock()

		if currentHash != "" && currentHash == newHash {
			log.Debugf("config file content unchanged (hash match), skipping reload")
			return
		}
		log.Infof("config file changed, reloading: %s", w.configPath)
		if w.reloadConfig() {
			w.mu.Lock()
			w.lastConfigHash = newHash
			w.mu.Unlock()
		}
		return
	}

	if isAuthJSON {
		if event.Op&fsnotify.Create == fsnotify.Create || event.Op&fsnotify.Write == fsnotify.Write {
			w.addOrUpdateToken(event.Name)
		} else if event.Op&fsnotify.Remove == fsnotify.Remove || event.Op&fsnotify.Rename == fsnotify.Rename {
			w.removeToken(event.Name)
		}
	}
}

// reloadConfig reloads the configuration and notifies the callback.
func (w *Watcher) reloadConfig() bool {
	log.Debugf("starting config reload from: %s", w.configPath)

	newConfig, errLoadConfig := config.LoadConfig(w.configPath)
	if errLoadConfig != nil {
		log.Errorf("failed to reload config: %v", errLoadConfig)
		return false
	}

	w.mu.Lock()
	oldConfig := w.config
	w.config = newConfig
	w.mu.Unlock()

	// Always apply the current log level based on the latest config.
	util.SetLogLevel(newConfig)

	if oldConfig != nil {
		log.Debugf("config changes detected:")
		if oldConfig.Port != newConfig.Port {
			log.Debugf("  port: %d -> %d", oldConfig.Port, newConfig.Port)
		}
		if oldConfig.AuthDir != newConfig.AuthDir {
			log.Debugf("  auth-dir: %s -> %s", oldConfig.AuthDir, newConfig.AuthDir)
		}
		if oldConfig.Debug != newConfig.Debug {
			log.Debugf("  debug: %t -> %t", oldConfig.Debug, newConfig.Debug)
		}
		if oldConfig.ProxyURL != newConfig.ProxyURL {
			log.Debugf("  proxy-url: %s -> %s", oldConfig.ProxyURL, newConfig.ProxyURL)
		}
		if oldConfig.RequestLog != newConfig.RequestLog {
			log.Debugf("  request-log: %t -> %t", oldConfig.RequestLog, newConfig.RequestLog)
		}
		if oldConfig.Okta.OrgURL != newConfig.Okta.OrgURL {
			log.Debugf("  okta.org-url: %s -> %s", oldConfig.Okta.OrgURL, newConfig.Okta.OrgURL)
		}
		if oldConfig.Okta.ClientID != newConfig.Okta.ClientID {
			log.Debugf("  okta.client-id changed")
		}
		if oldConfig.Salesforce.Domain != newConfig.Salesforce.Domain {
			log.Debugf("  salesforce.domain: %s -> %s", oldConfig.Salesforce.Domain, newConfig.Salesforce.Domain)
		}
		if oldConfig.AWS.Region != newConfig.AWS.Region {
			log.Debugf("  aws.region: %s -> %s", oldConfig.AWS.Region, newConfig.AWS.Region)
		}
		if oldConfig.TVM.Issuer != newConfig.TVM.Issuer {
			log.Debugf("  tvm.issuer: %s -> %s", oldConfig.TVM.Issuer, newConfig.TVM.Issuer)
		}
		if oldConfig.MCP.Enabled != newConfig.MCP.Enabled {
			log.Debugf("  mcp.enabled: %t -> %t", oldConfig.MCP.Enabled, newConfig.MCP.Enabled)
		}
		if oldConfig.MCP.Transport != newConfig.MCP.Transport {
			log.Debugf("  mcp.transport: %s -> %s", oldConfig.MCP.Transport, newConfig.MCP.Transport)
		}
		if oldConfig.RemoteManagement.SecretKey != newConfig.RemoteManagement.SecretKey {
			log.Debugf("  remote-management.secret-key changed")
		}
	}

	log.Infof("config successfully reloaded")
	w.notifyReload()
	return true
}

// addOrUpdateToken handles a created or rewritten token file.
func (w *Watcher) addOrUpdateToken(path string) {
	misc.LogCredentialSeparator()
	log.Debugf("processing auth file: %s", filepath.Base(path))
	data, errRead := readAuthFileWithRetry(path, authFileReadMaxAttempts, authFileReadRetryDelay)
	if errRead != nil {
		log.Errorf("failed to read auth file %s: %v", filepath.Base(path), errRead)
		return
	}
	// An empty file is likely an intermediate state (e.g. after touch,
	// before write). Wait for a subsequent write event with content.
	if len(data) == 0 {
		log.Debugf("ignoring empty auth file: %s", filepath.Base(path))
		return
	}

	sum := sha256.Sum256(data)
	curHash := hex.EncodeToString(sum[:])

	w.mu.Lock()
	if prev, ok := w.lastAuthHashes[path]; ok && prev == curHash {
		log.Debugf("auth file unchanged (hash match), skipping: %s", filepath.Base(path))
		w.mu.Unlock()
		return
	}
	w.lastAuthHashes[path] = curHash
	w.mu.Unlock()

	log.Infof("auth file changed: %s", filepath.Base(path))
	w.notifyReload()
}

// removeToken handles a deleted token file.
func (w *Watcher) removeToken(path string) {
	w.mu.Lock()
	_, known := w.lastAuthHashes[path]
	delete(w.lastAuthHashes, path)
	w.mu.Unlock()

	if !known {
		return
	}
	log.Infof("auth file removed: %s", filepath.Base(path))
	w.notifyReload()
}

// notifyReload republishes the current token inventory and configuration.
func (w *Watcher) notifyReload() {
	w.mu.RLock()
	cfg := w.config
	callback := w.reloadCallback
	w.mu.RUnlock()

	if callback == nil {
		return
	}
	records, err := w.store.List()
	if err != nil {
		log.Errorf("failed to list auth directory: %v", err)
		records = nil
	}
	callback(records, cfg)
}

// readAuthFileWithRetry attempts to read the auth file multiple times to
// work around short-lived locks on Windows while token files are being
// written.
func readAuthFileWithRetry(path string, attempts int, delay time.Duration) ([]byte, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return nil, lastErr
}
