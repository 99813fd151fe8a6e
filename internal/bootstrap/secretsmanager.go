package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/systmms/vaultcache/internal/config"
	"github.com/systmms/vaultcache/internal/logging"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerLoader reads the bootstrap JSON from an AWS Secrets Manager
// secret (current version).
type SecretsManagerLoader struct {
	client SecretsManagerAPI
	logger *logging.Logger
}

// NewSecretsManagerLoader builds the loader, creating an SDK client from
// settings unless one was injected.
func NewSecretsManagerLoader(ctx context.Context, settings config.AWSSettings, opts ...Option) (*SecretsManagerLoader, error) {
	o := applyOptions(opts)

	l := &SecretsManagerLoader{client: o.sm, logger: o.logger}
	if l.client != nil {
		return l, nil
	}

	cfg, err := loadAWSConfig(ctx, settings, o)
	if err != nil {
		return nil, err
	}
	var clientOpts []func(*secretsmanager.Options)
	if settings.Endpoint != "" {
		endpoint := settings.Endpoint
		clientOpts = append(clientOpts, func(so *secretsmanager.Options) {
			so.BaseEndpoint = &endpoint
		})
	}
	l.client = secretsmanager.NewFromConfig(cfg, clientOpts...)
	return l, nil
}

func (l *SecretsManagerLoader) Load(ctx context.Context, secretID string) (*config.Bootstrap, error) {
	out, err := l.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return nil, handleError("aws-secretsmanager", secretID, err)
	}

	var payload []byte
	switch {
	case out.SecretString != nil:
		payload = []byte(*out.SecretString)
	case out.SecretBinary != nil:
		payload = out.SecretBinary
	default:
		return nil, fmt.Errorf("secret '%s' has no value", secretID)
	}

	b, err := config.ParseBootstrap(payload)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("loaded bootstrap from secret %s (version %s)", secretID, aws.ToString(out.VersionId))
	return b, nil
}
