package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Cache outcome label values
const (
	OutcomeHit     = "hit"
	OutcomeProbe   = "probe"
	OutcomeRefresh = "refresh"
)

// Metrics counts store round trips and cache decisions. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	bootstrapFetches *prometheus.CounterVec
	logins           *prometheus.CounterVec
	renewals         *prometheus.CounterVec
	secretReads      *prometheus.CounterVec
	metadataProbes   *prometheus.CounterVec
	cacheRequests    *prometheus.CounterVec
	readDuration     prometheus.Histogram
}

// New registers the collectors with reg. Passing nil creates collectors
// that are not registered anywhere, which is handy in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		bootstrapFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultcache_bootstrap_fetches_total",
				Help: "Total number of bootstrap credential fetches",
			},
			[]string{"result"},
		),
		logins: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultcache_logins_total",
				Help: "Total number of AppRole logins",
			},
			[]string{"result"},
		),
		renewals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultcache_renewals_total",
				Help: "Total number of token renewal attempts",
			},
			[]string{"result"},
		),
		secretReads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultcache_secret_reads_total",
				Help: "Total number of full secret reads",
			},
			[]string{"result"},
		),
		metadataProbes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultcache_metadata_probes_total",
				Help: "Total number of secret metadata probes",
			},
			[]string{"result"},
		),
		cacheRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultcache_cache_requests_total",
				Help: "Secrets requests by cache decision (hit, probe, refresh)",
			},
			[]string{"outcome"},
		),
		readDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vaultcache_secret_read_duration_seconds",
				Help:    "Duration of full secret reads in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
	}
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// RecordBootstrapFetch records one bootstrap credential load
func (m *Metrics) RecordBootstrapFetch(err error) {
	if m == nil {
		return
	}
	m.bootstrapFetches.WithLabelValues(result(err)).Inc()
}

// RecordLogin records one login attempt
func (m *Metrics) RecordLogin(err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result(err)).Inc()
}

// RecordRenewal records a renewal outcome label (ok, failed, skipped)
func (m *Metrics) RecordRenewal(outcome string) {
	if m == nil {
		return
	}
	m.renewals.WithLabelValues(outcome).Inc()
}

// RecordSecretRead records a full read and its duration
func (m *Metrics) RecordSecretRead(err error, seconds float64) {
	if m == nil {
		return
	}
	m.secretReads.WithLabelValues(result(err)).Inc()
	m.readDuration.Observe(seconds)
}

// RecordProbe records a metadata probe; ok is false when no timestamp came back
func (m *Metrics) RecordProbe(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.metadataProbes.WithLabelValues(ResultOK).Inc()
		return
	}
	m.metadataProbes.WithLabelValues(ResultError).Inc()
}

// RecordCacheRequest records which cache branch served a request
func (m *Metrics) RecordCacheRequest(outcome string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(outcome).Inc()
}

// BootstrapFetches exposes the counter for tests
func (m *Metrics) BootstrapFetches() *prometheus.CounterVec { return m.bootstrapFetches }

// Logins exposes the counter for tests
func (m *Metrics) Logins() *prometheus.CounterVec { return m.logins }

// Renewals exposes the counter for tests
func (m *Metrics) Renewals() *prometheus.CounterVec { return m.renewals }

// SecretReads exposes the counter for tests
func (m *Metrics) SecretReads() *prometheus.CounterVec { return m.secretReads }

// MetadataProbes exposes the counter for tests
func (m *Metrics) MetadataProbes() *prometheus.CounterVec { return m.metadataProbes }

// CacheRequests exposes the counter for tests
func (m *Metrics) CacheRequests() *prometheus.CounterVec { return m.cacheRequests }
