// Package middleware exposes the secrets cache to HTTP services.
//
// Wrap a handler with Secrets and every request first makes sure the
// service's secrets are loaded. Handlers read them with FromContext; they are
// also exported into the process environment for libraries that only look
// there.
//
//	mgr := manager.New(manager.WithVaultConfig(vcfg))
//	mux.Handle("/", middleware.Secrets(mgr, middleware.Options{Service: "slack-bot"})(app))
//
// When secrets cannot be fetched the wrapped handler is not called and the
// response is a bare 502 carrying the header
// "x-error: error fetching secrets.".
package middleware

import (
	"context"
	"net/http"

	"github.com/systmms/vaultcache/internal/config"
	"github.com/systmms/vaultcache/internal/execenv"
	"github.com/systmms/vaultcache/internal/logging"
)

const (
	// ErrorHeader is set on responses that failed before reaching the handler.
	ErrorHeader = "x-error"
	// ErrorMessage is the fixed value of ErrorHeader. Details are only logged.
	ErrorMessage = "error fetching secrets."
)

// SecretLoader is what the middleware needs from *manager.Manager
type SecretLoader interface {
	LoadSecrets(ctx context.Context, caller config.Caller, opts config.Options) (map[string]string, error)
}

// CallerFunc resolves the caller identity of a request
type CallerFunc func(r *http.Request) config.Caller

// Options configures the middleware
type Options struct {
	// Service is the static caller identity. Ignored when Caller is set.
	Service string
	// Caller resolves the identity per request. A Manager caches one path at
	// a time, so alternating identities on one Manager re-read every switch.
	Caller CallerFunc
	// Load is passed to every LoadSecrets call.
	Load config.Options
	// SkipEnv disables exporting secrets into the process environment.
	SkipEnv bool
	Logger  *logging.Logger
}

type contextKey struct{}

// Secrets returns middleware that loads the caller's secrets before the
// wrapped handler runs.
func Secrets(loader SecretLoader, opts Options) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(false, false)
	}
	logger = logger.Named("middleware")

	resolve := opts.Caller
	if resolve == nil {
		caller := config.Caller{ServiceName: opts.Service}
		resolve = func(*http.Request) config.Caller { return caller }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := resolve(r)

			secrets, err := loader.LoadSecrets(r.Context(), caller, opts.Load)
			if err != nil {
				logger.Error("failed to load secrets for %q: %v", caller.ServiceName, err)
				fail(w)
				return
			}

			if !opts.SkipEnv {
				if err := execenv.Apply(secrets); err != nil {
					logger.Error("failed to export secrets for %q: %v", caller.ServiceName, err)
					fail(w)
					return
				}
			}

			ctx := context.WithValue(r.Context(), contextKey{}, merge(FromContext(r.Context()), secrets))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the secrets attached to ctx by Secrets, or nil. The map
// is shared by the request; do not modify it.
func FromContext(ctx context.Context) map[string]string {
	secrets, _ := ctx.Value(contextKey{}).(map[string]string)
	return secrets
}

// merge layers secrets over values already in the request config, so nested
// middleware for different services accumulate.
func merge(existing, secrets map[string]string) map[string]string {
	if len(existing) == 0 {
		return secrets
	}
	out := make(map[string]string, len(existing)+len(secrets))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range secrets {
		out[k] = v
	}
	return out
}

func fail(w http.ResponseWriter) {
	w.Header().Set(ErrorHeader, ErrorMessage)
	w.WriteHeader(http.StatusBadGateway)
}
