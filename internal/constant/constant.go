// Package constant defines provider name constants used throughout qbridge.
// These constants identify the supported identity providers and token types,
// ensuring consistent naming across token files and the application.
package constant

const (
	// Okta represents the Okta OAuth2/OIDC provider identifier.
	Okta = "okta"

	// OktaSAML represents the Okta SAML provider identifier.
	OktaSAML = "okta-saml"

	// Salesforce represents the Salesforce OAuth2 provider identifier.
	Salesforce = "salesforce"
)
