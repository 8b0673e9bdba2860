// Package session loads AWS SDK configurations from the application
// configuration. Two flavors exist: a base configuration resolved from
// static keys, a shared-config profile or the default chain, and an
// identity-aware configuration whose credentials come from the token
// vending machine on behalf of a specific user.
package session

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/qbridge-dev/qbridge/internal/aws/tvm"
	"github.com/qbridge-dev/qbridge/internal/config"
)

// Load resolves the base AWS configuration. Static keys win over the
// configured profile, which wins over the default credential chain.
func Load(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.AccessKeyID != "" && cfg.AWS.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AWS.AccessKeyID,
				cfg.AWS.SecretAccessKey,
				cfg.AWS.SessionToken,
			),
		))
	} else if cfg.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return awsCfg, nil
}

// LoadIdentityAware resolves an AWS configuration whose credentials are
// vended by the TVM for the given email identity. The email argument
// falls back to the configured TVM email when empty.
func LoadIdentityAware(ctx context.Context, cfg *config.Config, email string) (aws.Config, error) {
	awsCfg, err := Load(ctx, cfg)
	if err != nil {
		return aws.Config{}, err
	}

	tvmClient, err := tvm.NewClient(cfg)
	if err != nil {
		return aws.Config{}, err
	}

	if email == "" {
		email = cfg.TVM.Email
	}
	if email == "" {
		return aws.Config{}, fmt.Errorf("no email identity available for TVM credentials")
	}

	provider := tvm.NewProvider(tvmClient, sts.NewFromConfig(awsCfg), cfg.TVM.RoleArn, email)
	awsCfg.Credentials = aws.NewCredentialsCache(provider)
	return awsCfg, nil
}
