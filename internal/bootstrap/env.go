package bootstrap

import (
	"context"
	"os"

	"github.com/systmms/vaultcache/internal/config"
)

// EnvLoader reads the bootstrap JSON from an environment variable. It is
// meant for local development and CI, where no AWS account is at hand.
type EnvLoader struct {
	lookup func(string) (string, bool)
}

// NewEnvLoader reads the real process environment
func NewEnvLoader() *EnvLoader {
	return &EnvLoader{lookup: os.LookupEnv}
}

func (l *EnvLoader) Load(_ context.Context, name string) (*config.Bootstrap, error) {
	v, ok := l.lookup(name)
	if !ok || v == "" {
		return nil, &NotFoundError{Source: "environment", ID: name}
	}
	return config.ParseBootstrap([]byte(v))
}

// Static always returns a copy of b. Useful in tests and when credentials
// come from somewhere vaultcache does not know about.
func Static(b config.Bootstrap) Loader {
	return LoaderFunc(func(context.Context, string) (*config.Bootstrap, error) {
		cp := b
		if err := cp.Validate(); err != nil {
			return nil, err
		}
		return &cp, nil
	})
}
