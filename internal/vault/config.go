package vault

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	dserrors "github.com/systmms/vaultcache/internal/errors"
	"github.com/systmms/vaultcache/internal/logging"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultAuthMount = "approle"
	DefaultKVMount   = "secret"
)

// Config describes one store connection
type Config struct {
	Address   string // Vault server address
	Mount     string // KV v2 mount holding the service secrets
	AuthMount string // AppRole auth mount, "approle" by default
	Namespace string // Vault namespace (Vault Enterprise)
	Timeout   time.Duration

	CACert  string // Path to CA certificate
	TLSSkip bool   // Skip TLS verification (not recommended)
}

// Option customizes a Client
type Option func(*options)

type options struct {
	logger *logging.Logger
	now    func() time.Time
}

// WithLogger sets the logger used for warnings such as swallowed renewals
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func (c Config) withDefaults() Config {
	if c.AuthMount == "" {
		c.AuthMount = DefaultAuthMount
	}
	if c.Mount == "" {
		c.Mount = DefaultKVMount
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	c.Mount = strings.Trim(c.Mount, "/")
	c.AuthMount = strings.Trim(c.AuthMount, "/")
	return c
}

func (c Config) validate() error {
	if c.Address == "" {
		return dserrors.ConfigError{
			Field:      "address",
			Message:    "Vault address is required",
			Suggestion: "Set 'address' in the bootstrap secret",
		}
	}
	if !strings.HasPrefix(c.Address, "http://") && !strings.HasPrefix(c.Address, "https://") {
		return dserrors.ConfigError{
			Field:      "address",
			Value:      c.Address,
			Message:    "Vault address must be an http(s) URL",
			Suggestion: "Use format: https://vault.example.com:8200",
		}
	}
	return nil
}

// newAPIClient builds the underlying SDK client. The SDK's own retries are
// disabled and any ambient VAULT_TOKEN is dropped: the session owns the token.
func newAPIClient(cfg Config) (*api.Client, error) {
	apiCfg := api.DefaultConfig()
	if apiCfg.Error != nil {
		return nil, fmt.Errorf("failed to read vault environment: %w", apiCfg.Error)
	}
	apiCfg.Address = cfg.Address
	apiCfg.Timeout = cfg.Timeout
	apiCfg.MaxRetries = 0

	if cfg.CACert != "" || cfg.TLSSkip {
		if err := apiCfg.ConfigureTLS(&api.TLSConfig{
			CACert:   cfg.CACert,
			Insecure: cfg.TLSSkip,
		}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.ClearToken()
	client.SetCloneHeaders(true)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	return client, nil
}
