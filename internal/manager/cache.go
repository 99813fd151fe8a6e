package manager

import (
	"context"
	"sync"
	"time"

	"github.com/systmms/vaultcache/internal/config"
	"github.com/systmms/vaultcache/internal/logging"
	"github.com/systmms/vaultcache/internal/metrics"
	"github.com/systmms/vaultcache/internal/secure"
)

// secretSource is what the cache needs from a store client
type secretSource interface {
	ReadSecret(ctx context.Context, path string) (map[string]string, error)
	Probe(ctx context.Context, path string) (time.Time, bool)
}

// Cache holds the single secret payload of the process.
//
// An entry is served until it is Expiration old. In between, once every
// CheckDelay, the secret's metadata is probed: the first successful probe
// only records a baseline, and a later probe reporting a strictly newer
// update time triggers a full read. A request for a different path than the
// one cached replaces the entry and its baseline.
type Cache struct {
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *logging.Logger

	mu          sync.Mutex
	gen         uint64 // bumped by Clear; refreshes started before it are not stored
	path        string
	payload     *secure.Payload
	loadedAt    time.Time
	checkedAt   time.Time
	lastChanged time.Time // zero until a probe establishes a baseline
}

// NewCache creates an empty cache
func NewCache(now func() time.Time, m *metrics.Metrics, logger *logging.Logger) *Cache {
	return &Cache{now: now, metrics: m, logger: logger}
}

// Get returns the secrets at path, reading or probing the store as the
// entry's age requires. The returned map belongs to the caller.
func (c *Cache) Get(ctx context.Context, src secretSource, path string, opts config.Options) (map[string]string, error) {
	now := c.now()

	c.mu.Lock()
	gen := c.gen
	cached := c.payload != nil && c.path == path
	loadedAt, checkedAt := c.loadedAt, c.checkedAt
	c.mu.Unlock()

	if !cached || now.Sub(loadedAt) >= opts.Expiration {
		c.metrics.RecordCacheRequest(metrics.OutcomeRefresh)
		c.logger.Debug("cache miss for %s, reading secret", path)
		return c.refresh(ctx, src, path, now, time.Time{}, gen)
	}

	if now.Sub(checkedAt) >= opts.CheckDelay {
		c.metrics.RecordCacheRequest(metrics.OutcomeProbe)
		changed, ok := src.Probe(ctx, path)
		c.metrics.RecordProbe(ok)

		c.mu.Lock()
		var baseline time.Time
		if c.gen == gen && c.path == path {
			c.checkedAt = now
			baseline = c.lastChanged
			if baseline.IsZero() && ok {
				c.lastChanged = changed
			}
		}
		c.mu.Unlock()

		if !baseline.IsZero() && ok && changed.After(baseline) {
			c.logger.Debug("secret %s changed at %s, reading secret", path, changed.Format(time.RFC3339))
			return c.refresh(ctx, src, path, now, changed, gen)
		}
	} else {
		c.metrics.RecordCacheRequest(metrics.OutcomeHit)
	}

	values, ok, err := c.open(path)
	if err != nil || ok {
		return values, err
	}
	// Replaced by another path or cleared since the decision above.
	c.logger.Debug("entry for %s went away, reading secret", path)
	return c.refresh(ctx, src, path, now, time.Time{}, gen)
}

// refresh performs a full read and replaces the entry. changed, if set,
// becomes the new baseline; a new path starts without one. A failed read
// leaves the entry untouched, and so does a read that raced with Clear.
func (c *Cache) refresh(ctx context.Context, src secretSource, path string, now, changed time.Time, gen uint64) (map[string]string, error) {
	start := time.Now()
	values, err := src.ReadSecret(ctx, path)
	c.metrics.RecordSecretRead(err, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return values, nil
	}

	sealed, err := secure.Seal(values)
	if err != nil {
		return nil, err
	}

	if c.path != path {
		c.lastChanged = time.Time{}
	}
	old := c.payload
	c.path = path
	c.payload = sealed
	c.loadedAt = now
	c.checkedAt = now
	if !changed.IsZero() {
		c.lastChanged = changed
	}
	if old != nil {
		old.Destroy()
	}

	c.logger.Debug("cached %s (keys: %s)", path, logging.Keys(values))
	return values, nil
}

// open decrypts the payload if it still belongs to path. It runs under the
// lock so a concurrent refresh or Clear cannot destroy the payload mid-read.
func (c *Cache) open(path string) (map[string]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload == nil || c.path != path {
		return nil, false, nil
	}
	values, err := c.payload.Open()
	return values, err == nil, err
}

// Clear drops the entry and its baseline
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload != nil {
		c.payload.Destroy()
	}
	c.gen++
	c.path = ""
	c.payload = nil
	c.loadedAt = time.Time{}
	c.checkedAt = time.Time{}
	c.lastChanged = time.Time{}
}

// Path is the path of the cached entry, empty if none
func (c *Cache) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// LastChanged is the current staleness baseline, zero if none
func (c *Cache) LastChanged() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastChanged
}
