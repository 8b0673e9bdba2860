package cmd

import (
	"context"
	"fmt"

	"github.com/qbridge-dev/qbridge/internal/auth"
	"github.com/qbridge-dev/qbridge/internal/auth/salesforce"
	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/constant"
	"github.com/qbridge-dev/qbridge/internal/interfaces"
	"github.com/qbridge-dev/qbridge/internal/misc"
	log "github.com/sirupsen/logrus"
)

// salesforceLogin drives the Salesforce web-server flow with PKCE from the
// terminal.
type salesforceLogin struct {
	cfg   *config.Config
	store *auth.Store
}

func newSalesforceLogin(cfg *config.Config, store *auth.Store) *salesforceLogin {
	return &salesforceLogin{cfg: cfg, store: store}
}

// Provider implements interfaces.LoginProvider.
func (l *salesforceLogin) Provider() string {
	return constant.Salesforce
}

// Login implements interfaces.LoginProvider.
func (l *salesforceLogin) Login(ctx context.Context, options *interfaces.LoginOptions) (string, error) {
	log.Info("Initializing Salesforce authentication...")

	sfAuth := salesforce.NewSalesforceAuth(l.cfg)
	verifier := sfAuth.GenerateVerifier()

	state, err := misc.GenerateRandomState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state parameter: %w", err)
	}

	callbackServer := salesforce.NewCallbackServer(l.cfg.Port)
	callbackServer.Start()
	defer func() {
		if errStop := callbackServer.Stop(ctx); errStop != nil {
			log.Warnf("Failed to stop OAuth callback server: %v", errStop)
		}
	}()

	authURL := sfAuth.GenerateAuthURL(state, verifier)
	openAuthURL(authURL, options)

	log.Info("Waiting for authentication callback...")
	result, err := callbackServer.WaitForCallback(callbackTimeout(options))
	if err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", fmt.Errorf("authorization failed: %s", result.Error)
	}
	if result.State != state {
		return "", fmt.Errorf("state mismatch: expected %s, got %s", state, result.State)
	}
	if result.Code == "" {
		return "", fmt.Errorf("no authorization code received")
	}

	log.Debug("Authorization code received, exchanging for tokens...")

	tokenStorage, err := sfAuth.ExchangeCodeForTokens(ctx, result.Code, verifier)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code for tokens: %w", err)
	}

	authFilePath, err := l.store.SaveToken(tokenStorage, constant.Salesforce, tokenStorage.Email)
	if err != nil {
		return "", fmt.Errorf("failed to save authentication tokens: %w", err)
	}
	return authFilePath, nil
}
