package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/systmms/vaultcache/internal/config"
	"github.com/systmms/vaultcache/internal/logging"
)

const defaultRegion = "us-east-1"

// Option configures the AWS-backed loaders
type Option func(*options)

type options struct {
	logger *logging.Logger
	sm     SecretsManagerAPI
	ssm    SSMAPI
	sts    stscreds.AssumeRoleAPIClient
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing)
func WithSecretsManagerClient(c SecretsManagerAPI) Option {
	return func(o *options) {
		o.sm = c
	}
}

// WithSSMClient sets a custom SSM client (for testing)
func WithSSMClient(c SSMAPI) Option {
	return func(o *options) {
		o.ssm = c
	}
}

// WithSTSClient sets the client used to assume AssumeRoleARN (for testing)
func WithSTSClient(c stscreds.AssumeRoleAPIClient) Option {
	return func(o *options) {
		o.sts = c
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.New(false, false)
	}
	o.logger = o.logger.Named("bootstrap")
	return o
}

// loadAWSConfig resolves credentials from the default chain, optionally
// pinned to static keys or a profile, and wraps them in an assume-role
// provider when AssumeRoleARN is set.
func loadAWSConfig(ctx context.Context, s config.AWSSettings, o options) (aws.Config, error) {
	var configOpts []func(*awsconfig.LoadOptions) error

	if s.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(s.Region))
	}
	if s.Profile != "" {
		configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(s.Profile))
	}
	if s.AccessKeyID != "" && s.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	if s.AssumeRoleARN != "" {
		stsClient := o.sts
		if stsClient == nil {
			stsClient = sts.NewFromConfig(cfg, func(so *sts.Options) {
				if s.Endpoint != "" {
					so.BaseEndpoint = aws.String(s.Endpoint)
				}
			})
		}
		o.logger.Debug("assuming role %s for bootstrap access", logging.Secret(s.AssumeRoleARN))
		cfg.Credentials = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(stsClient, s.AssumeRoleARN, func(ao *stscreds.AssumeRoleOptions) {
			ao.RoleSessionName = fmt.Sprintf("vaultcache-%d", time.Now().Unix())
		}))
	}

	return cfg, nil
}
