package tvm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qbridge-dev/qbridge/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.TVM.Issuer = server.URL + "/"
	cfg.TVM.ClientID = "tvm-client"
	cfg.TVM.ClientSecret = "tvm-secret"

	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresConfiguration(t *testing.T) {
	cfg := &config.Config{}
	_, err := NewClient(cfg)
	assert.Error(t, err)

	cfg.TVM.Issuer = "https://tvm.example.com"
	_, err = NewClient(cfg)
	assert.Error(t, err)

	cfg.TVM.ClientID = "id"
	cfg.TVM.ClientSecret = "secret"
	_, err = NewClient(cfg)
	assert.NoError(t, err)
}

func TestFetchIDToken(t *testing.T) {
	var gotUser, gotPass, gotEmail string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		var ok bool
		gotUser, gotPass, ok = r.BasicAuth()
		require.True(t, ok)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotEmail = body["email"]
		_, _ = w.Write([]byte(`{"id_token":"header.payload.signature"}`))
	}))

	token, err := client.FetchIDToken(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "header.payload.signature", token)
	assert.Equal(t, "tvm-client", gotUser)
	assert.Equal(t, "tvm-secret", gotPass)
	assert.Equal(t, "user@example.com", gotEmail)
}

func TestFetchIDTokenRequiresEmail(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))
	_, err := client.FetchIDToken(context.Background(), "")
	assert.Error(t, err)
}

func TestFetchIDTokenErrorStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"unknown client"}`))
	}))
	_, err := client.FetchIDToken(context.Background(), "user@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFetchIDTokenMissingToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	_, err := client.FetchIDToken(context.Background(), "user@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id_token")
}

type fakeSTS struct {
	gotInput *sts.AssumeRoleWithWebIdentityInput
	output   *sts.AssumeRoleWithWebIdentityOutput
	err      error
}

func (f *fakeSTS) AssumeRoleWithWebIdentity(ctx context.Context, params *sts.AssumeRoleWithWebIdentityInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error) {
	f.gotInput = params
	return f.output, f.err
}

func TestProviderRetrieve(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id_token":"web-identity-token"}`))
	}))

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	fake := &fakeSTS{
		output: &sts.AssumeRoleWithWebIdentityOutput{
			Credentials: &ststypes.Credentials{
				AccessKeyId:     aws.String("AKIA_TEST"),
				SecretAccessKey: aws.String("secret"),
				SessionToken:    aws.String("session"),
				Expiration:      aws.Time(expiry),
			},
		},
	}

	provider := NewProvider(client, fake, "arn:aws:iam::123456789012:role/qbridge", "user@example.com")
	creds, err := provider.Retrieve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "AKIA_TEST", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
	assert.Equal(t, "session", creds.SessionToken)
	assert.True(t, creds.CanExpire)
	assert.Equal(t, expiry, creds.Expires)

	require.NotNil(t, fake.gotInput)
	assert.Equal(t, "arn:aws:iam::123456789012:role/qbridge", aws.ToString(fake.gotInput.RoleArn))
	assert.Equal(t, "session-user@example.com", aws.ToString(fake.gotInput.RoleSessionName))
	assert.Equal(t, "web-identity-token", aws.ToString(fake.gotInput.WebIdentityToken))
}

func TestProviderRequiresRoleArn(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id_token":"tok"}`))
	}))
	provider := NewProvider(client, &fakeSTS{}, "", "user@example.com")
	_, err := provider.Retrieve(context.Background())
	assert.Error(t, err)
}
