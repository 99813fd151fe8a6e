package config

import (
	"os"
	"strings"
	"time"

	dserrors "github.com/systmms/vaultcache/internal/errors"
)

const (
	// DefaultExpiration is the full-refresh TTL of the secrets cache.
	DefaultExpiration = time.Hour
	// DefaultCheckDelay is the minimum interval between metadata probes.
	DefaultCheckDelay = time.Minute
)

// Caller identifies who is asking for secrets. For HTTP services this is the
// service itself; the default secret path is {environment}/{ServiceName}.
type Caller struct {
	ServiceName string
}

// NameFunc resolves the secret path for a caller in a given environment.
type NameFunc func(caller Caller, environment string) string

// Options are passed with every secrets request.
type Options struct {
	// Expiration forces a full read once the cached payload is this old.
	Expiration time.Duration
	// CheckDelay is the minimum time between two metadata probes.
	CheckDelay time.Duration
	// BootstrapPath overrides VAULTCACHE_BOOTSTRAP_PATH.
	BootstrapPath string
	// Name overrides the default secret path. NameFunc wins when both are set.
	Name     string
	NameFunc NameFunc
}

// WithDefaults fills zero durations with the package defaults
func (o Options) WithDefaults() Options {
	if o.Expiration <= 0 {
		o.Expiration = DefaultExpiration
	}
	if o.CheckDelay <= 0 {
		o.CheckDelay = DefaultCheckDelay
	}
	return o
}

// ResolveBootstrapPath returns where the bootstrap credential lives: the
// option override first, then the environment.
func (o Options) ResolveBootstrapPath() (string, error) {
	if o.BootstrapPath != "" {
		return o.BootstrapPath, nil
	}
	if p := os.Getenv(EnvBootstrapPath); p != "" {
		return p, nil
	}
	return "", dserrors.ConfigError{
		Field:      "bootstrap_path",
		Message:    "no bootstrap path configured",
		Suggestion: "Set bootstrap_path in vaultcache.yaml or export " + EnvBootstrapPath,
	}
}

// SecretPath resolves the KV path of the caller's secrets
func (o Options) SecretPath(caller Caller, environment string) (string, error) {
	var name string
	switch {
	case o.NameFunc != nil:
		name = o.NameFunc(caller, environment)
	case o.Name != "":
		name = o.Name
	default:
		if caller.ServiceName == "" {
			return "", dserrors.ConfigError{
				Field:      "service",
				Message:    "cannot derive a secret path without a service name",
				Suggestion: "Set service in vaultcache.yaml, export " + EnvService + ", or pass an explicit name",
			}
		}
		name = DefaultName(caller, environment)
	}

	name = strings.Trim(name, "/")
	if name == "" {
		return "", dserrors.ConfigError{
			Field:   "name",
			Message: "secret path resolved to an empty string",
		}
	}
	return name, nil
}

// DefaultName implements the {environment}/{serviceName} convention
func DefaultName(caller Caller, environment string) string {
	if environment == "" {
		return caller.ServiceName
	}
	return environment + "/" + caller.ServiceName
}
