// Package tvm implements the token vending machine client and the AWS
// credentials provider built on it. The TVM issues OIDC ID tokens for
// an email identity; those tokens are exchanged for temporary AWS
// credentials through STS AssumeRoleWithWebIdentity.
package tvm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/util"
)

// defaultSessionDuration is requested for assumed-role credentials.
const defaultSessionDuration = time.Hour

// Client requests ID tokens from the token vending machine.
type Client struct {
	httpClient   *http.Client
	issuer       string
	clientID     string
	clientSecret string
}

// NewClient builds a TVM client from the configuration. Issuer, client
// ID and client secret must all be set.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.TVM.Issuer == "" {
		return nil, fmt.Errorf("TVM issuer is not configured")
	}
	if cfg.TVM.ClientID == "" || cfg.TVM.ClientSecret == "" {
		return nil, fmt.Errorf("TVM client credentials are not configured")
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	util.SetProxy(cfg, httpClient)
	return &Client{
		httpClient:   httpClient,
		issuer:       strings.TrimRight(cfg.TVM.Issuer, "/"),
		clientID:     cfg.TVM.ClientID,
		clientSecret: cfg.TVM.ClientSecret,
	}, nil
}

// FetchIDToken requests an ID token for the given email identity.
func (c *Client) FetchIDToken(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", fmt.Errorf("email is required to fetch an ID token")
	}

	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return "", fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.issuer+"/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var tokenResp struct {
		IDToken string `json:"id_token"`
	}
	if err = json.Unmarshal(respBody, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.IDToken == "" {
		return "", fmt.Errorf("token response did not contain an id_token")
	}
	return tokenResp.IDToken, nil
}

// stsAssumeAPI is the slice of the STS client used by the provider.
type stsAssumeAPI interface {
	AssumeRoleWithWebIdentity(ctx context.Context, params *sts.AssumeRoleWithWebIdentityInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error)
}

// Provider implements aws.CredentialsProvider by exchanging a fresh TVM
// ID token for role credentials on every retrieval. Wrap it in an
// aws.CredentialsCache so retrievals only happen near expiry.
type Provider struct {
	tvm      *Client
	sts      stsAssumeAPI
	roleArn  string
	email    string
	duration time.Duration
}

// NewProvider builds a credentials provider for the given role and
// email identity.
func NewProvider(tvmClient *Client, stsClient stsAssumeAPI, roleArn, email string) *Provider {
	return &Provider{
		tvm:      tvmClient,
		sts:      stsClient,
		roleArn:  roleArn,
		email:    email,
		duration: defaultSessionDuration,
	}
}

// Retrieve implements aws.CredentialsProvider.
func (p *Provider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	if p.roleArn == "" {
		return aws.Credentials{}, fmt.Errorf("TVM role ARN is not configured")
	}

	idToken, err := p.tvm.FetchIDToken(ctx, p.email)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("failed to fetch ID token: %w", err)
	}

	out, err := p.sts.AssumeRoleWithWebIdentity(ctx, &sts.AssumeRoleWithWebIdentityInput{
		RoleArn:          aws.String(p.roleArn),
		RoleSessionName:  aws.String("session-" + p.email),
		WebIdentityToken: aws.String(idToken),
		DurationSeconds:  aws.Int32(int32(p.duration.Seconds())),
	})
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("AssumeRoleWithWebIdentity failed: %w", err)
	}
	if out.Credentials == nil {
		return aws.Credentials{}, fmt.Errorf("AssumeRoleWithWebIdentity returned no credentials")
	}

	return aws.Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		CanExpire:       out.Credentials.Expiration != nil,
		Expires:         aws.ToTime(out.Credentials.Expiration),
		Source:          "TVMWebIdentity",
	}, nil
}
