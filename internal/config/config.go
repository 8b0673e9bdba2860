// Package config provides configuration management for the qbridge server.
// It handles loading and parsing YAML configuration files, and provides structured
// access to application settings including server bind address, authentication
// directory, identity-provider credentials, AWS settings, and MCP transport options.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the hostname used when building local redirect and ACS URLs.
	Host string `yaml:"host"`

	// Port is the network port on which the web server will listen.
	// OAuth redirect URIs and the SAML ACS URL are derived from it.
	Port int `yaml:"port"`

	// AuthDir is the directory where authentication token files are stored.
	AuthDir string `yaml:"auth-dir"`

	// Debug enables or disables debug-level logging and other debug features.
	Debug bool `yaml:"debug"`

	// LoggingToFile redirects application logs to rotating files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file"`

	// RequestLog enables or disables detailed request logging functionality.
	RequestLog bool `yaml:"request-log"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url"`

	// RemoteManagement guards the management API endpoints.
	RemoteManagement RemoteManagement `yaml:"remote-management"`

	// Okta holds the Okta organization, OAuth client and management API settings.
	Okta OktaConfig `yaml:"okta"`

	// SAML holds the SAML service-provider settings for the Okta IdP.
	SAML SAMLConfig `yaml:"saml"`

	// Salesforce holds the Salesforce connected-app OAuth settings.
	Salesforce SalesforceConfig `yaml:"salesforce"`

	// AWS holds the region and shared-profile settings for AWS API calls.
	AWS AWSConfig `yaml:"aws"`

	// TVM holds the token vending machine settings used to exchange an
	// identity token for temporary AWS credentials.
	TVM TVMConfig `yaml:"tvm"`

	// QBusiness identifies the Amazon Q Business application the tools target.
	QBusiness QBusinessConfig `yaml:"qbusiness"`

	// Kendra identifies the default Amazon Kendra index the tools target.
	Kendra KendraConfig `yaml:"kendra"`

	// MCP configures the Model Context Protocol tool server.
	MCP MCPConfig `yaml:"mcp"`
}

// RemoteManagement controls access to the management API.
type RemoteManagement struct {
	// SecretKey is the bcrypt hash of the management key. Management
	// endpoints are disabled when it is empty.
	SecretKey string `yaml:"secret-key"`
}

// OktaConfig represents the Okta organization and OAuth client settings.
type OktaConfig struct {
	// OrgURL is the Okta organization URL, e.g. https://your-org.okta.com.
	OrgURL string `yaml:"org-url"`

	// AuthServerID is the authorization server segment of the OAuth endpoints.
	// Defaults to "default" when empty.
	AuthServerID string `yaml:"auth-server-id"`

	// ClientID is the OAuth client identifier of the Okta application.
	ClientID string `yaml:"client-id"`

	// ClientSecret is the OAuth client secret. Leave empty for public
	// clients; the flow then relies on PKCE alone.
	ClientSecret string `yaml:"client-secret"`

	// Scopes are the OAuth scopes requested during authorization.
	// Defaults to "openid profile email" when empty.
	Scopes []string `yaml:"scopes"`

	// APIToken is the SSWS token for the Okta management API.
	APIToken string `yaml:"api-token"`
}

// SAMLConfig represents the SAML service-provider settings.
type SAMLConfig struct {
	// EntityID is the service-provider entity ID published in the metadata.
	// Defaults to the metadata URL when empty.
	EntityID string `yaml:"entity-id"`

	// IDPMetadataURL is the URL of the identity provider's metadata document.
	IDPMetadataURL string `yaml:"idp-metadata-url"`

	// IDPMetadataFile is a local path to the identity provider's metadata
	// document, used instead of IDPMetadataURL when set.
	IDPMetadataFile string `yaml:"idp-metadata-file"`

	// CertFile is the path to the service provider's signing certificate (PEM).
	CertFile string `yaml:"certificate"`

	// KeyFile is the path to the service provider's signing key (PEM).
	KeyFile string `yaml:"private-key"`
}

// SalesforceConfig represents the Salesforce connected-app OAuth settings.
type SalesforceConfig struct {
	// Domain is the Salesforce login domain, e.g. login.salesforce.com or a My Domain.
	Domain string `yaml:"domain"`

	// ClientID is the consumer key of the connected app.
	ClientID string `yaml:"client-id"`

	// ClientSecret is the consumer secret. Optional when the connected app
	// allows PKCE-only token exchanges.
	ClientSecret string `yaml:"client-secret"`

	// Scopes are the OAuth scopes requested during authorization.
	// Defaults to "openid email profile api" when empty.
	Scopes []string `yaml:"scopes"`
}

// AWSConfig represents the AWS region and credential source settings.
type AWSConfig struct {
	// Region is the AWS region used for STS, Q Business and Kendra calls.
	// Defaults to us-east-1 when empty.
	Region string `yaml:"region"`

	// Profile selects a shared-config profile for credential resolution
	// when no token vending machine is configured.
	Profile string `yaml:"profile"`

	// AccessKeyID, with SecretAccessKey, supplies static credentials that
	// take precedence over the profile and the default chain.
	AccessKeyID string `yaml:"access-key-id"`

	// SecretAccessKey is the static secret key paired with AccessKeyID.
	SecretAccessKey string `yaml:"secret-access-key"`

	// SessionToken is the optional session token for static credentials.
	SessionToken string `yaml:"session-token"`
}

// TVMConfig represents the token vending machine settings.
type TVMConfig struct {
	// Issuer is the base URL of the token vending machine.
	Issuer string `yaml:"issuer"`

	// ClientID authenticates this service to the token vending machine.
	ClientID string `yaml:"client-id"`

	// ClientSecret authenticates this service to the token vending machine.
	ClientSecret string `yaml:"client-secret"`

	// RoleArn is the IAM role assumed with the vended identity token.
	RoleArn string `yaml:"role-arn"`

	// Email is the subject the identity token is issued for. When empty the
	// e-mail recorded in the stored Okta token is used.
	Email string `yaml:"email"`
}

// QBusinessConfig identifies the Amazon Q Business application and plugin.
type QBusinessConfig struct {
	// ApplicationID is the Amazon Q Business application identifier.
	ApplicationID string `yaml:"application-id"`

	// RetrieverID is the default retriever used for relevant-content searches.
	RetrieverID string `yaml:"retriever-id"`

	// PluginID is the plugin invoked by chat requests in plugin mode.
	PluginID string `yaml:"plugin-id"`
}

// KendraConfig identifies the default Amazon Kendra index.
type KendraConfig struct {
	// IndexID is the Kendra index queried when a request names none.
	IndexID string `yaml:"index-id"`
}

// MCPConfig configures the Model Context Protocol tool server.
type MCPConfig struct {
	// Enabled starts the MCP tool server alongside the web server.
	Enabled bool `yaml:"enabled"`

	// Transport selects the MCP transport, either "stdio" or "sse".
	Transport string `yaml:"transport"`

	// SSEPort is the port the SSE transport listens on.
	SSEPort int `yaml:"sse-port"`
}

// LoadConfig reads a YAML configuration file from the given path,
// unmarshals it into a Config struct, applies defaults,
// and returns it.
//
// Parameters:
//   - configFile: The path to the YAML configuration file
//
// Returns:
//   - *Config: The loaded configuration
//   - error: An error if the configuration could not be loaded
func LoadConfig(configFile string) (*Config, error) {
	// Read the entire configuration file into memory.
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal the YAML data into the Config struct.
	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// SaveConfig writes the configuration back to the given YAML file. Management
// API updates go through here so edits survive a restart.
func SaveConfig(configFile string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err = os.WriteFile(configFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyDefaults fills in the defaulted fields documented on the structs.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.AuthDir == "" {
		c.AuthDir = "~/.qbridge"
	}
	if c.Okta.AuthServerID == "" {
		c.Okta.AuthServerID = "default"
	}
	if len(c.Okta.Scopes) == 0 {
		c.Okta.Scopes = []string{"openid", "profile", "email"}
	}
	c.Okta.OrgURL = strings.TrimRight(c.Okta.OrgURL, "/")
	if len(c.Salesforce.Scopes) == 0 {
		c.Salesforce.Scopes = []string{"openid", "email", "profile", "api"}
	}
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.MCP.Transport == "" {
		c.MCP.Transport = "stdio"
	}
	if c.MCP.SSEPort == 0 {
		c.MCP.SSEPort = 8081
	}
}

// BaseURL returns the externally reachable base URL of the web server.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// OktaIssuer returns the issuer URL of the configured Okta authorization server.
func (c *Config) OktaIssuer() string {
	return fmt.Sprintf("%s/oauth2/%s", c.Okta.OrgURL, c.Okta.AuthServerID)
}
