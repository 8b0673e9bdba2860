package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
port: 9090
auth-dir: "/tmp/qbridge-auth"
debug: true
okta:
  org-url: "https://dev-123456.okta.com/"
  client-id: "0oa1client"
  scopes:
    - openid
    - offline_access
salesforce:
  domain: "login.salesforce.com"
  client-id: "3MVGclient"
tvm:
  issuer: "https://tvm.example.com/"
  role-arn: "arn:aws:iam::123456789012:role/qbridge"
mcp:
  enabled: true
  transport: sse
  sse-port: 9191
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/qbridge-auth", cfg.AuthDir)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "https://dev-123456.okta.com", cfg.Okta.OrgURL)
	assert.Equal(t, []string{"openid", "offline_access"}, cfg.Okta.Scopes)
	assert.Equal(t, "3MVGclient", cfg.Salesforce.ClientID)
	assert.Equal(t, "arn:aws:iam::123456789012:role/qbridge", cfg.TVM.RoleArn)
	assert.True(t, cfg.MCP.Enabled)
	assert.Equal(t, "sse", cfg.MCP.Transport)
	assert.Equal(t, 9191, cfg.MCP.SSEPort)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "okta:\n  org-url: https://dev-123456.okta.com\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "~/.qbridge", cfg.AuthDir)
	assert.Equal(t, "default", cfg.Okta.AuthServerID)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Okta.Scopes)
	assert.Equal(t, []string{"openid", "email", "profile", "api"}, cfg.Salesforce.Scopes)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, "stdio", cfg.MCP.Transport)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL())
	assert.Equal(t, "https://dev-123456.okta.com/oauth2/default", cfg.OktaIssuer())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "port: [not a port\n")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
