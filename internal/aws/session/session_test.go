package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qbridge-dev/qbridge/internal/config"
)

func TestLoadUsesConfiguredRegion(t *testing.T) {
	cfg := &config.Config{}
	cfg.AWS.Region = "us-west-2"

	awsCfg, err := Load(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", awsCfg.Region)
}

func TestLoadStaticCredentials(t *testing.T) {
	cfg := &config.Config{}
	cfg.AWS.Region = "us-east-1"
	cfg.AWS.AccessKeyID = "AKIA_STATIC"
	cfg.AWS.SecretAccessKey = "static-secret"
	cfg.AWS.SessionToken = "static-session"

	awsCfg, err := Load(context.Background(), cfg)
	require.NoError(t, err)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIA_STATIC", creds.AccessKeyID)
	assert.Equal(t, "static-secret", creds.SecretAccessKey)
	assert.Equal(t, "static-session", creds.SessionToken)
}

func TestLoadIdentityAwareRequiresTVM(t *testing.T) {
	cfg := &config.Config{}
	cfg.AWS.Region = "us-east-1"

	_, err := LoadIdentityAware(context.Background(), cfg, "user@example.com")
	assert.Error(t, err)
}

func TestLoadIdentityAwareRequiresEmail(t *testing.T) {
	cfg := &config.Config{}
	cfg.AWS.Region = "us-east-1"
	cfg.TVM.Issuer = "https://tvm.example.com"
	cfg.TVM.ClientID = "id"
	cfg.TVM.ClientSecret = "secret"
	cfg.TVM.RoleArn = "arn:aws:iam::123456789012:role/qbridge"

	_, err := LoadIdentityAware(context.Background(), cfg, "")
	assert.Error(t, err)

	_, err = LoadIdentityAware(context.Background(), cfg, "user@example.com")
	assert.NoError(t, err)
}
