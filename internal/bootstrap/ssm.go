package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/systmms/vaultcache/internal/config"
	"github.com/systmms/vaultcache/internal/logging"
)

// SSMAPI is the subset of the SSM client used here
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMLoader reads the bootstrap JSON from an SSM parameter, decrypting
// SecureString values.
type SSMLoader struct {
	client SSMAPI
	logger *logging.Logger
}

// NewSSMLoader builds the loader, creating an SDK client from settings
// unless one was injected.
func NewSSMLoader(ctx context.Context, settings config.AWSSettings, opts ...Option) (*SSMLoader, error) {
	o := applyOptions(opts)

	l := &SSMLoader{client: o.ssm, logger: o.logger}
	if l.client != nil {
		return l, nil
	}

	cfg, err := loadAWSConfig(ctx, settings, o)
	if err != nil {
		return nil, err
	}
	var clientOpts []func(*ssm.Options)
	if settings.Endpoint != "" {
		endpoint := settings.Endpoint
		clientOpts = append(clientOpts, func(so *ssm.Options) {
			so.BaseEndpoint = &endpoint
		})
	}
	l.client = ssm.NewFromConfig(cfg, clientOpts...)
	return l, nil
}

func (l *SSMLoader) Load(ctx context.Context, name string) (*config.Bootstrap, error) {
	out, err := l.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, handleError("aws-ssm", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, fmt.Errorf("parameter '%s' has no value", name)
	}

	b, err := config.ParseBootstrap([]byte(*out.Parameter.Value))
	if err != nil {
		return nil, err
	}
	l.logger.Debug("loaded bootstrap from parameter %s (version %d)", name, out.Parameter.Version)
	return b, nil
}
