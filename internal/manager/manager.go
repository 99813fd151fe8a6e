package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/systmms/vaultcache/internal/bootstrap"
	"github.com/systmms/vaultcache/internal/config"
	"github.com/systmms/vaultcache/internal/logging"
	"github.com/systmms/vaultcache/internal/metrics"
	"github.com/systmms/vaultcache/internal/vault"
	"golang.org/x/sync/singleflight"
)

// ErrInitializationFailed is returned to every caller of a failed
// initialization flight, wrapped together with the underlying cause.
var ErrInitializationFailed = errors.New("secret store client initialization failed")

// ErrReset is the cause reported to callers of a flight that was overtaken
// by Reset. Its client is discarded.
var ErrReset = errors.New("manager was reset during initialization")

const (
	initKey = "init"

	// initTimeout bounds a flight that no caller can cancel any more.
	initTimeout = 2 * time.Minute
)

// StoreClient is the part of *vault.Client the manager drives
type StoreClient interface {
	Authenticate(ctx context.Context, roleID, secretID string) error
	IsAuthenticated() bool
	IsExpiringSoon() bool
	Renew(ctx context.Context) vault.RenewOutcome
	State() vault.State
	ReadSecret(ctx context.Context, path string) (map[string]string, error)
	Probe(ctx context.Context, path string) (time.Time, bool)
	Close() error
}

// ClientFactory builds a store client for a bootstrapped connection
type ClientFactory func(cfg vault.Config) (StoreClient, error)

// Manager owns the process's store client, its bootstrap credentials and the
// secrets cache. Use one Manager per service identity.
type Manager struct {
	loader    bootstrap.Loader
	vaultCfg  vault.Config
	newClient ClientFactory
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time

	group singleflight.Group
	cache *Cache

	mu     sync.Mutex
	gen    uint64 // bumped by Reset
	client StoreClient
	boot   *config.Bootstrap
}

// Option configures a Manager
type Option func(*Manager)

// WithLoader sets where bootstrap credentials come from. The default routes
// by path prefix to SSM, Secrets Manager or the environment.
func WithLoader(l bootstrap.Loader) Option {
	return func(m *Manager) {
		m.loader = l
	}
}

// WithVaultConfig sets connection settings not carried by the bootstrap
// secret (auth mount, namespace, TLS, timeout). Address and Mount are
// always taken from the bootstrap secret.
func WithVaultConfig(cfg vault.Config) Option {
	return func(m *Manager) {
		m.vaultCfg = cfg
	}
}

// WithClientFactory replaces how store clients are built (for testing)
func WithClientFactory(f ClientFactory) Option {
	return func(m *Manager) {
		m.newClient = f
	}
}

// WithMetrics records store and cache activity
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock replaces time.Now for cache and token decisions
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New creates a Manager. Nothing touches the network until first use.
func New(opts ...Option) *Manager {
	m := &Manager{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.New(false, false)
	}
	m.logger = m.logger.Named("manager")
	if m.loader == nil {
		m.loader = bootstrap.NewRouter(config.AWSSettings{}, bootstrap.WithLogger(m.logger))
	}
	if m.newClient == nil {
		m.newClient = func(cfg vault.Config) (StoreClient, error) {
			return vault.New(cfg, vault.WithLogger(m.logger), vault.WithClock(m.now))
		}
	}
	m.cache = NewCache(m.now, m.metrics, m.logger)
	return m
}

var (
	defaultOnce    sync.Once
	defaultManager *Manager
)

// Default is the process-wide Manager used by the CLI and by middleware
// constructed without an explicit one.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultManager = New()
	})
	return defaultManager
}

// EnsureClient makes sure an authenticated client exists. Concurrent callers
// share a single initialization flight and its outcome, so the bootstrap
// secret is fetched and login performed at most once at a time.
func (m *Manager) EnsureClient(ctx context.Context, opts config.Options) error {
	ch := m.group.DoChan(initKey, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), initTimeout)
		defer cancel()
		return nil, m.initialize(fctx, opts)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%w: %w", ErrInitializationFailed, res.Err)
		}
	}

	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil || !client.IsAuthenticated() {
		return ErrInitializationFailed
	}
	return nil
}

func (m *Manager) initialize(ctx context.Context, opts config.Options) error {
	m.mu.Lock()
	client, boot, gen := m.client, m.boot, m.gen
	m.mu.Unlock()

	switch {
	case client == nil || boot == nil:
		return m.bootstrap(ctx, opts, gen)

	case !client.IsAuthenticated():
		m.logger.Debug("session %s, logging in again", client.State())
		err := client.Authenticate(ctx, boot.RoleID, boot.SecretID)
		m.metrics.RecordLogin(err)
		return err

	case client.IsExpiringSoon():
		outcome := client.Renew(ctx)
		m.metrics.RecordRenewal(outcome.String())
	}
	return nil
}

// bootstrap loads credentials, builds the client and logs in. The client is
// kept even if login fails so that a retry does not fetch the bootstrap
// secret again. Nothing is stored if Reset ran since gen was observed.
func (m *Manager) bootstrap(ctx context.Context, opts config.Options, gen uint64) error {
	path, err := opts.ResolveBootstrapPath()
	if err != nil {
		return err
	}

	boot, err := m.loader.Load(ctx, path)
	m.metrics.RecordBootstrapFetch(err)
	if err != nil {
		return err
	}

	cfg := m.vaultCfg
	cfg.Address = boot.Address
	cfg.Mount = boot.Mount
	client, err := m.newClient(cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		_ = client.Close()
		m.logger.Debug("discarding client bootstrapped before reset")
		return ErrReset
	}
	m.client, m.boot = client, boot
	m.mu.Unlock()

	m.logger.Debug("bootstrapped %s for environment %s", boot.Address, boot.Environment)

	err = client.Authenticate(ctx, boot.RoleID, boot.SecretID)
	m.metrics.RecordLogin(err)
	return err
}

// LoadSecrets returns the secrets of caller in the bootstrapped environment,
// served from the process cache when it is fresh.
func (m *Manager) LoadSecrets(ctx context.Context, caller config.Caller, opts config.Options) (map[string]string, error) {
	opts = opts.WithDefaults()

	if err := m.EnsureClient(ctx, opts); err != nil {
		return nil, err
	}

	m.mu.Lock()
	client, boot := m.client, m.boot
	m.mu.Unlock()
	if client == nil || boot == nil {
		return nil, ErrInitializationFailed
	}

	path, err := opts.SecretPath(caller, boot.Environment)
	if err != nil {
		return nil, err
	}
	return m.cache.Get(ctx, client, path, opts)
}

// State reports the session state, or Unauthenticated before bootstrap
func (m *Manager) State() vault.State {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return vault.StateUnauthenticated
	}
	return client.State()
}

// Environment is the bootstrapped environment name, empty before bootstrap
func (m *Manager) Environment() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.boot == nil {
		return ""
	}
	return m.boot.Environment
}

// Reset forgets the client, the bootstrap credentials and the cache. The
// next call bootstraps from scratch. A flight already running when Reset is
// called is detached: it cannot install its client, and its callers get
// ErrReset.
func (m *Manager) Reset() {
	m.group.Forget(initKey)

	m.mu.Lock()
	client := m.client
	m.gen++
	m.client, m.boot = nil, nil
	m.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
	m.cache.Clear()
}
