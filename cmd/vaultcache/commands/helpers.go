package commands

import (
	"errors"
	"fmt"
	"sort"

	"github.com/systmms/vaultcache/internal/bootstrap"
	"github.com/systmms/vaultcache/internal/config"
	dserrors "github.com/systmms/vaultcache/internal/errors"
	"github.com/systmms/vaultcache/internal/manager"
	"github.com/systmms/vaultcache/internal/vault"
)

// ExitError carries a child process exit code up to main without printing
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// setup loads the configuration and builds a manager from it. extra options
// are applied last, so callers (and tests) can override the loader or clock.
func setup(cfg *config.Config, service, name string, extra []manager.Option) (*manager.Manager, config.Caller, config.Options, error) {
	if err := cfg.Load(); err != nil {
		return nil, config.Caller{}, config.Options{}, err
	}
	def := cfg.Definition
	cfg.Logger.Debug("Configuration: %s", def)

	opts := def.Options()
	if name != "" {
		opts.Name = name
	}

	caller := config.Caller{ServiceName: def.Service}
	if service != "" {
		caller.ServiceName = service
	}
	if caller.ServiceName == "" && opts.Name == "" {
		return nil, config.Caller{}, config.Options{}, dserrors.UserError{
			Message:    "No service specified",
			Suggestion: "Use --service <name>, set service in vaultcache.yaml, or export " + config.EnvService,
		}
	}

	mopts := []manager.Option{
		manager.WithLogger(cfg.Logger),
		manager.WithVaultConfig(vaultConfig(def.Vault)),
		manager.WithLoader(bootstrap.NewRouter(def.AWS, bootstrap.WithLogger(cfg.Logger))),
	}
	mopts = append(mopts, extra...)
	return manager.New(mopts...), caller, opts, nil
}

// explain attaches store-specific suggestions to Vault failures. Bootstrap
// errors already carry theirs.
func explain(err error) error {
	var (
		authErr  *vault.AuthError
		readErr  *vault.ReadError
		notFound *vault.NotFoundError
	)
	switch {
	case errors.As(err, &authErr):
		return dserrors.StoreError("vault", authErr.Op, err)
	case errors.As(err, &readErr), errors.As(err, &notFound):
		return dserrors.StoreError("vault", "secret read", err)
	}
	return err
}

func vaultConfig(s config.VaultSettings) vault.Config {
	return vault.Config{
		AuthMount: s.AuthMount,
		Namespace: s.Namespace,
		Timeout:   s.Timeout(),
		CACert:    s.CACert,
		TLSSkip:   s.TLSSkip,
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
