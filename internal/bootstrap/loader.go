package bootstrap

import (
	"context"
	"strings"
	"sync"

	"github.com/systmms/vaultcache/internal/config"
	dserrors "github.com/systmms/vaultcache/internal/errors"
	"github.com/systmms/vaultcache/internal/logging"
)

// Loader fetches the bootstrap credential set stored at path
type Loader interface {
	Load(ctx context.Context, path string) (*config.Bootstrap, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context, path string) (*config.Bootstrap, error)

func (f LoaderFunc) Load(ctx context.Context, path string) (*config.Bootstrap, error) {
	return f(ctx, path)
}

// Kind identifies the backing service of a bootstrap path
type Kind string

const (
	KindSecretsManager Kind = "sm"
	KindSSM            Kind = "ssm"
	KindEnv            Kind = "env"
)

// Parse splits a bootstrap path into its kind and service-specific id.
//
//	ssm:/prod/vault/approle        SSM parameter
//	sm:prod/vault/approle          Secrets Manager secret name
//	arn:aws:secretsmanager:...     Secrets Manager secret ARN
//	arn:aws:ssm:...                SSM parameter ARN
//	env:VAULTCACHE_BOOTSTRAP_JSON  JSON held in an environment variable
//
// Anything else is treated as a Secrets Manager secret name.
func Parse(path string) (Kind, string) {
	switch {
	case strings.HasPrefix(path, "ssm:"):
		return KindSSM, strings.TrimPrefix(path, "ssm:")
	case strings.HasPrefix(path, "sm:"):
		return KindSecretsManager, strings.TrimPrefix(path, "sm:")
	case strings.HasPrefix(path, "env:"):
		return KindEnv, strings.TrimPrefix(path, "env:")
	case strings.HasPrefix(path, "arn:") && strings.Contains(path, ":ssm:"):
		return KindSSM, path
	default:
		return KindSecretsManager, path
	}
}

// Router dispatches to a loader by path prefix. AWS clients are built on
// first use so that env-only setups never touch the AWS config chain.
type Router struct {
	settings config.AWSSettings
	opts     []Option
	logger   *logging.Logger

	mu  sync.Mutex
	sm  *SecretsManagerLoader
	ssm *SSMLoader
	env *EnvLoader
}

// NewRouter returns a Loader accepting every path form understood by Parse
func NewRouter(settings config.AWSSettings, opts ...Option) *Router {
	o := applyOptions(opts)
	return &Router{
		settings: settings,
		opts:     opts,
		logger:   o.logger,
	}
}

func (r *Router) Load(ctx context.Context, path string) (*config.Bootstrap, error) {
	kind, id := Parse(strings.TrimSpace(path))
	if id == "" {
		return nil, dserrors.ConfigError{
			Field:      "bootstrap_path",
			Value:      path,
			Message:    "bootstrap path has no secret id",
			Suggestion: "Use ssm:/param/name, sm:secret-name, a secret ARN or env:VARIABLE",
		}
	}

	r.logger.Debug("loading bootstrap credentials from %s:%s", kind, id)

	loader, err := r.loader(ctx, kind)
	if err != nil {
		return nil, err
	}
	return loader.Load(ctx, id)
}

func (r *Router) loader(ctx context.Context, kind Kind) (Loader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case KindEnv:
		if r.env == nil {
			r.env = NewEnvLoader()
		}
		return r.env, nil
	case KindSSM:
		if r.ssm == nil {
			l, err := NewSSMLoader(ctx, r.settings, r.opts...)
			if err != nil {
				return nil, err
			}
			r.ssm = l
		}
		return r.ssm, nil
	default:
		if r.sm == nil {
			l, err := NewSecretsManagerLoader(ctx, r.settings, r.opts...)
			if err != nil {
				return nil, err
			}
			r.sm = l
		}
		return r.sm, nil
	}
}
