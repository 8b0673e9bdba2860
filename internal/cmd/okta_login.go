package cmd

import (
	"context"
	"fmt"

	"github.com/qbridge-dev/qbridge/internal/auth"
	"github.com/qbridge-dev/qbridge/internal/auth/okta"
	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/constant"
	"github.com/qbridge-dev/qbridge/internal/interfaces"
	"github.com/qbridge-dev/qbridge/internal/misc"
	log "github.com/sirupsen/logrus"
)

// oktaLogin drives the Okta authorization-code flow with PKCE from the
// terminal. A short-lived local HTTP server receives the redirect on the
// same port the web server would use, so the registered redirect URI
// matches in both modes.
type oktaLogin struct {
	cfg   *config.Config
	store *auth.Store
}

func newOktaLogin(cfg *config.Config, store *auth.Store) *oktaLogin {
	return &oktaLogin{cfg: cfg, store: store}
}

// Provider implements interfaces.LoginProvider.
func (l *oktaLogin) Provider() string {
	return constant.Okta
}

// Login implements interfaces.LoginProvider.
func (l *oktaLogin) Login(ctx context.Context, options *interfaces.LoginOptions) (string, error) {
	log.Info("Initializing Okta authentication...")

	// Generate PKCE codes
	pkceCodes, err := okta.GeneratePKCECodes()
	if err != nil {
		return "", fmt.Errorf("failed to generate PKCE codes: %w", err)
	}

	// Generate random state parameter
	state, err := misc.GenerateRandomState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state parameter: %w", err)
	}

	// Start OAuth callback server
	oauthServer := okta.NewOAuthServer(l.cfg.Port)
	if err = oauthServer.Start(ctx); err != nil {
		return "", fmt.Errorf("failed to start OAuth callback server: %w", err)
	}
	defer func() {
		if errStop := oauthServer.Stop(ctx); errStop != nil {
			log.Warnf("Failed to stop OAuth callback server: %v", errStop)
		}
	}()

	// Generate authorization URL
	oktaAuth := okta.NewOktaAuth(l.cfg)
	authURL, err := oktaAuth.GenerateAuthURL(state, pkceCodes)
	if err != nil {
		return "", fmt.Errorf("failed to generate authorization URL: %w", err)
	}

	openAuthURL(authURL, options)

	log.Info("Waiting for authentication callback...")
	result, err := oauthServer.WaitForCallback(callbackTimeout(options))
	if err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", fmt.Errorf("authorization failed: %s", result.Error)
	}

	// Validate state parameter
	if result.State != state {
		return "", fmt.Errorf("state mismatch: expected %s, got %s", state, result.State)
	}

	log.Debug("Authorization code received, exchanging for tokens...")

	// Exchange authorization code for tokens
	tokenStorage, err := oktaAuth.ExchangeCodeForTokens(ctx, result.Code, pkceCodes)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code for tokens: %w", err)
	}

	authFilePath, err := l.store.SaveToken(tokenStorage, constant.Okta, tokenStorage.Email)
	if err != nil {
		return "", fmt.Errorf("failed to save authentication tokens: %w", err)
	}
	return authFilePath, nil
}
