// Package cmd provides command-line interface functionality for the qbridge
// server. It implements the main application commands including identity
// provider login and server startup, handling the complete user onboarding
// and service lifecycle.
package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/qbridge-dev/qbridge/internal/auth"
	"github.com/qbridge-dev/qbridge/internal/browser"
	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/constant"
	"github.com/qbridge-dev/qbridge/internal/interfaces"
	"github.com/qbridge-dev/qbridge/internal/util"
	log "github.com/sirupsen/logrus"
)

// LoginOptions contains options for the login process.
type LoginOptions = interfaces.LoginOptions

// callbackWaitTimeout bounds the wait for the OAuth redirect when the
// options carry no timeout of their own.
const callbackWaitTimeout = 5 * time.Minute

// DoLogin runs the interactive login flow for the named identity provider
// and stores the resulting tokens in the auth directory.
//
// Parameters:
//   - cfg: The application configuration
//   - provider: The identity provider to authenticate against
//   - options: The login options containing browser preferences
func DoLogin(cfg *config.Config, provider string, options *LoginOptions) {
	if options == nil {
		options = &LoginOptions{}
	}

	authDir, err := util.ResolveAuthDir(cfg.AuthDir)
	if err != nil {
		log.Fatalf("failed to resolve auth directory: %v", err)
		return
	}
	store, err := auth.NewStore(authDir)
	if err != nil {
		log.Fatalf("failed to open auth directory: %v", err)
		return
	}

	var flow interfaces.LoginProvider
	switch strings.ToLower(provider) {
	case constant.Okta, "":
		flow = newOktaLogin(cfg, store)
	case constant.Salesforce:
		flow = newSalesforceLogin(cfg, store)
	default:
		log.Fatalf("unknown login provider %q (supported: okta, salesforce)", provider)
		return
	}

	authFilePath, err := flow.Login(context.Background(), options)
	if err != nil {
		log.Fatalf("%s login failed: %v", flow.Provider(), err)
		return
	}

	log.Info("Authentication successful!")
	log.Infof("Tokens saved to %s", authFilePath)
}

// openAuthURL opens the authorization URL in the user's browser, or prints
// it when the browser is unavailable or disabled.
func openAuthURL(authURL string, options *interfaces.LoginOptions) {
	if options.NoBrowser {
		log.Infof("Please open this URL in your browser:\n\n%s\n", authURL)
		return
	}

	log.Info("Opening browser for authentication...")
	if !browser.IsAvailable() {
		log.Warn("No browser available on this system")
		log.Infof("Please manually open this URL in your browser:\n\n%s\n", authURL)
		return
	}
	if err := browser.OpenURL(authURL); err != nil {
		log.Warnf("Failed to open browser: %v", err)
		log.Infof("Please manually open this URL in your browser:\n\n%s\n", authURL)
		return
	}
	log.Debug("Browser opened successfully")
}

// callbackTimeout returns the wait bound for the OAuth redirect.
func callbackTimeout(options *interfaces.LoginOptions) time.Duration {
	if options.Timeout > 0 {
		return options.Timeout
	}
	return callbackWaitTimeout
}
