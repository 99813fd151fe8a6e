package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/systmms/vaultcache/internal/logging"
)

// Client reads KV v2 secrets and their metadata on behalf of one Session
type Client struct {
	cfg     Config
	session *Session
	kv      *api.KVv2
	logger  *logging.Logger
}

// New creates an unauthenticated client. Call Authenticate before reading.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.New(false, false)
	}
	logger := o.logger.Named("vault")

	apiClient, err := newAPIClient(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg: cfg,
		session: &Session{
			api:       apiClient,
			authMount: cfg.AuthMount,
			logger:    logger,
			now:       o.now,
		},
		kv:     apiClient.KVv2(cfg.Mount),
		logger: logger,
	}, nil
}

// Session exposes the token state machine
func (c *Client) Session() *Session {
	return c.session
}

// Mount is the KV v2 mount the client reads from
func (c *Client) Mount() string {
	return c.cfg.Mount
}

// Authenticate logs in with AppRole credentials
func (c *Client) Authenticate(ctx context.Context, roleID, secretID string) error {
	return c.session.Authenticate(ctx, roleID, secretID)
}

// IsAuthenticated reports whether the session token is currently usable
func (c *Client) IsAuthenticated() bool {
	return c.session.IsAuthenticated()
}

// IsExpiringSoon reports whether the token is within RenewBuffer of expiry
func (c *Client) IsExpiringSoon() bool {
	return c.session.IsExpiringSoon()
}

// Renew renews the session token if it is expiring soon
func (c *Client) Renew(ctx context.Context) RenewOutcome {
	return c.session.Renew(ctx)
}

// State is the session lifecycle state
func (c *Client) State() State {
	return c.session.State()
}

// ReadSecret returns the current version of the secret at path, with every
// value rendered as a string.
func (c *Client) ReadSecret(ctx context.Context, path string) (map[string]string, error) {
	if !c.session.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}

	secret, err := c.kv.Get(ctx, path)
	if err != nil {
		if errors.Is(err, api.ErrSecretNotFound) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, &ReadError{Path: path, StatusCode: StatusCode(err), Err: err}
	}
	if secret == nil || secret.Data == nil {
		return nil, &NotFoundError{Path: path}
	}

	values := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		s, err := stringify(v)
		if err != nil {
			return nil, &ReadError{Path: path, Err: fmt.Errorf("field %s: %w", k, err)}
		}
		values[k] = s
	}

	c.logger.Debug("read %s/%s (keys: %s)", c.cfg.Mount, path, logging.Keys(values))
	return values, nil
}

// Probe fetches the last-updated timestamp of the secret at path. The bool is
// false when no usable timestamp could be obtained, for any reason.
func (c *Client) Probe(ctx context.Context, path string) (time.Time, bool) {
	if !c.session.IsAuthenticated() {
		return time.Time{}, false
	}

	meta, err := c.kv.GetMetadata(ctx, path)
	if err != nil {
		c.logger.Debug("metadata probe for %s failed: %v", path, err)
		return time.Time{}, false
	}
	if meta == nil || meta.UpdatedTime.IsZero() {
		return time.Time{}, false
	}
	return meta.UpdatedTime, true
}

// LastChangedDate returns the secret's last update as epoch milliseconds,
// or 0 when it cannot be determined.
func (c *Client) LastChangedDate(ctx context.Context, path string) int64 {
	t, ok := c.Probe(ctx, path)
	if !ok {
		return 0
	}
	return t.UnixMilli()
}

// Close drops the session token
func (c *Client) Close() error {
	c.session.Close()
	return nil
}

func stringify(v interface{}) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case []byte:
		return string(v), nil
	case int, int32, int64:
		return fmt.Sprintf("%d", v), nil
	case float32, float64:
		return fmt.Sprintf("%g", v), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
