// Package saml implements the service-provider side of SAML 2.0 web
// SSO. It builds SP metadata, issues AuthnRequests over the redirect
// binding, validates assertions posted to the ACS and maintains the
// resulting sessions in a local bbolt store.
package saml

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"

	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/util"
)

const (
	// MetadataPath serves the SP entity descriptor.
	MetadataPath = "/saml/metadata"
	// ACSPath receives the IdP's POSTed response.
	ACSPath = "/saml/acs"
	// LoginPath starts the SP-initiated flow.
	LoginPath = "/saml/login"
	// LogoutPath clears the local session.
	LogoutPath = "/saml/logout"

	// SessionCookieName carries the SP session ID.
	SessionCookieName = "saml_session"
)

// Provider wires a crewjam service provider to the local session store.
type Provider struct {
	sp    saml.ServiceProvider
	store *Store
}

// NewProvider builds the service provider from configuration. IdP
// metadata comes from a local file when configured, otherwise it is
// fetched from the metadata URL.
func NewProvider(cfg *config.Config, store *Store) (*Provider, error) {
	base := cfg.BaseURL()
	metadataURL, err := url.Parse(base + MetadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metadata URL: %w", err)
	}
	acsURL, err := url.Parse(base + ACSPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ACS URL: %w", err)
	}

	entityID := cfg.SAML.EntityID
	if entityID == "" {
		entityID = metadataURL.String()
	}

	idpMetadata, err := loadIDPMetadata(cfg)
	if err != nil {
		return nil, err
	}

	provider := &Provider{
		sp: saml.ServiceProvider{
			EntityID:          entityID,
			MetadataURL:       *metadataURL,
			AcsURL:            *acsURL,
			IDPMetadata:       idpMetadata,
			AuthnNameIDFormat: saml.EmailAddressNameIDFormat,
		},
		store: store,
	}

	if cfg.SAML.CertFile != "" && cfg.SAML.KeyFile != "" {
		keyPair, errKey := tls.LoadX509KeyPair(cfg.SAML.CertFile, cfg.SAML.KeyFile)
		if errKey != nil {
			return nil, fmt.Errorf("failed to load SAML keypair: %w", errKey)
		}
		leaf, errLeaf := x509.ParseCertificate(keyPair.Certificate[0])
		if errLeaf != nil {
			return nil, fmt.Errorf("failed to parse SAML certificate: %w", errLeaf)
		}
		rsaKey, ok := keyPair.PrivateKey.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("SAML private key must be RSA")
		}
		provider.sp.Key = rsaKey
		provider.sp.Certificate = leaf
	}

	return provider, nil
}

// Store returns the session store backing this provider.
func (p *Provider) Store() *Store {
	return p.store
}

// Metadata renders the SP entity descriptor as XML.
func (p *Provider) Metadata() ([]byte, error) {
	data, err := xml.MarshalIndent(p.sp.Metadata(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render SP metadata: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}

// LoginURL issues an AuthnRequest over the redirect binding, tracks its
// ID for InResponseTo validation and returns the IdP URL to send the
// browser to.
func (p *Provider) LoginURL(relayState string) (string, error) {
	request, err := p.sp.MakeAuthenticationRequest(
		p.sp.GetSSOBindingLocation(saml.HTTPRedirectBinding),
		saml.HTTPRedirectBinding,
		saml.HTTPPostBinding,
	)
	if err != nil {
		return "", fmt.Errorf("failed to build AuthnRequest: %w", err)
	}
	if err = p.store.TrackRequest(request.ID); err != nil {
		return "", fmt.Errorf("failed to track AuthnRequest: %w", err)
	}
	redirect, err := request.Redirect(relayState, &p.sp)
	if err != nil {
		return "", fmt.Errorf("failed to encode AuthnRequest redirect: %w", err)
	}
	return redirect.String(), nil
}

// ConsumeResponse validates the POSTed response against the pending
// request IDs and establishes a session from the assertion.
func (p *Provider) ConsumeResponse(r *http.Request) (*Session, error) {
	ids, err := p.store.PendingRequestIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to load pending request IDs: %w", err)
	}
	assertion, err := p.sp.ParseResponse(r, ids)
	if err != nil {
		var invalid *saml.InvalidResponseError
		if errors.As(err, &invalid) {
			return nil, fmt.Errorf("invalid SAML response: %w", invalid.PrivateErr)
		}
		return nil, fmt.Errorf("failed to parse SAML response: %w", err)
	}

	nameID := ""
	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		nameID = assertion.Subject.NameID.Value
	}
	sessionIndex := ""
	for _, statement := range assertion.AuthnStatements {
		if statement.SessionIndex != "" {
			sessionIndex = statement.SessionIndex
			break
		}
	}
	attributes := map[string][]string{}
	for _, statement := range assertion.AttributeStatements {
		for _, attribute := range statement.Attributes {
			name := attribute.FriendlyName
			if name == "" {
				name = attribute.Name
			}
			for _, value := range attribute.Values {
				attributes[name] = append(attributes[name], value.Value)
			}
		}
	}

	session, err := p.store.CreateSession(nameID, sessionIndex, attributes)
	if err != nil {
		return nil, err
	}
	if id := inResponseTo(assertion); id != "" {
		_ = p.store.ConsumeRequest(id)
	}
	return session, nil
}

// LogoutURL builds a redirect-binding LogoutRequest for the given subject.
// It returns an empty URL when the IdP publishes no SLO endpoint, in which
// case only the local session can be cleared.
func (p *Provider) LogoutURL(nameID, relayState string) (string, error) {
	if p.sp.GetSLOBindingLocation(saml.HTTPRedirectBinding) == "" {
		return "", nil
	}
	redirect, err := p.sp.MakeRedirectLogoutRequest(nameID, relayState)
	if err != nil {
		return "", fmt.Errorf("failed to build LogoutRequest: %w", err)
	}
	return redirect.String(), nil
}

func inResponseTo(assertion *saml.Assertion) string {
	if assertion.Subject == nil {
		return ""
	}
	for _, confirmation := range assertion.Subject.SubjectConfirmations {
		if confirmation.SubjectConfirmationData != nil && confirmation.SubjectConfirmationData.InResponseTo != "" {
			return confirmation.SubjectConfirmationData.InResponseTo
		}
	}
	return ""
}

func loadIDPMetadata(cfg *config.Config) (*saml.EntityDescriptor, error) {
	if cfg.SAML.IDPMetadataFile != "" {
		data, err := os.ReadFile(cfg.SAML.IDPMetadataFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read IdP metadata file: %w", err)
		}
		metadata, err := samlsp.ParseMetadata(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse IdP metadata: %w", err)
		}
		return metadata, nil
	}
	if cfg.SAML.IDPMetadataURL == "" {
		return nil, fmt.Errorf("SAML IdP metadata source is not configured")
	}
	metadataURL, err := url.Parse(cfg.SAML.IDPMetadataURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse IdP metadata URL: %w", err)
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	util.SetProxy(cfg, httpClient)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	metadata, err := samlsp.FetchMetadata(ctx, httpClient, *metadataURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch IdP metadata: %w", err)
	}
	return metadata, nil
}
