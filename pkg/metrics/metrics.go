// Package metrics provides observability primitives for the zkim container
// library.
//
// The package includes:
//   - Collector's counters and gauges, and the Histogram type
//   - Prometheus-compatible metrics export
//   - OpenTelemetry tracing support
//   - Structured logging with levels
//   - Health check functionality
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates metrics from file-service and searchable-index
// operations.
type Collector struct {
	// Container lifecycle metrics
	filesCreated    atomic.Uint64
	filesDecrypted  atomic.Uint64
	filesDownloaded atomic.Uint64
	createFailed    atomic.Uint64
	decryptFailed   atomic.Uint64
	createLatency   *Histogram
	decryptLatency  *Histogram

	// Traffic metrics
	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64

	// Security metrics
	integrityFailures atomic.Uint64
	authFailures      atomic.Uint64
	accessDenials     atomic.Uint64

	// Searchable index metrics
	searchesTotal       atomic.Uint64
	searchRateLimited   atomic.Uint64
	indexSize           atomic.Int64
	trapdoorsIssued     atomic.Uint64
	trapdoorsRevoked    atomic.Uint64
	searchLatency       *Histogram

	// Error metrics
	storageErrors   atomic.Uint64
	protocolErrors  atomic.Uint64

	// Creation time for uptime tracking
	createdAt time.Time

	// Labels for this collector instance
	labels Labels
}

// Labels represents key-value pairs for metric labeling.
type Labels map[string]string

// NewCollector creates a new metrics collector.
func NewCollector(labels Labels) *Collector {
	if labels == nil {
		labels = make(Labels)
	}

	return &Collector{
		createLatency:  NewHistogram(CreateLatencyBuckets),
		decryptLatency: NewHistogram(LatencyBuckets),
		searchLatency:  NewHistogram(LatencyBuckets),
		createdAt:      time.Now(),
		labels:         labels,
	}
}

// Default bucket configurations for histograms.
var (
	// CreateLatencyBuckets for container creation duration (milliseconds):
	// chunking, three-layer sealing, Merkle build, and signing all happen
	// inline, so latencies run an order of magnitude higher than a single
	// AEAD operation and the buckets are spaced accordingly.
	CreateLatencyBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

	// LatencyBuckets for decrypt/search operations (microseconds).
	LatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// --- Container lifecycle metrics ---

// FileCreated records a successful Create call.
func (c *Collector) FileCreated() {
	c.filesCreated.Add(1)
}

// FileCreateFailed records a failed Create call.
func (c *Collector) FileCreateFailed() {
	c.createFailed.Add(1)
}

// FileDecrypted records a successful Decrypt call.
func (c *Collector) FileDecrypted() {
	c.filesDecrypted.Add(1)
}

// FileDecryptFailed records a failed Decrypt call.
func (c *Collector) FileDecryptFailed() {
	c.decryptFailed.Add(1)
}

// FileDownloaded records a successful Download call.
func (c *Collector) FileDownloaded() {
	c.filesDownloaded.Add(1)
}

// RecordCreateLatency records a Create call's duration.
func (c *Collector) RecordCreateLatency(d time.Duration) {
	c.createLatency.Observe(float64(d.Milliseconds()))
}

// RecordDecryptLatency records a Decrypt call's duration.
func (c *Collector) RecordDecryptLatency(d time.Duration) {
	c.decryptLatency.Observe(float64(d.Microseconds()))
}

// --- Traffic metrics ---

// RecordBytesIn adds to the cumulative plaintext-bytes-in counter (Create).
func (c *Collector) RecordBytesIn(n uint64) {
	c.bytesIn.Add(n)
}

// RecordBytesOut adds to the cumulative plaintext-bytes-out counter (Decrypt/Download).
func (c *Collector) RecordBytesOut(n uint64) {
	c.bytesOut.Add(n)
}

// --- Security metrics ---

// RecordIntegrityFailure increments the integrity-validation-failed counter.
func (c *Collector) RecordIntegrityFailure() {
	c.integrityFailures.Add(1)
}

// RecordAuthFailure increments the AEAD authentication-failure counter.
func (c *Collector) RecordAuthFailure() {
	c.authFailures.Add(1)
}

// RecordAccessDenial increments the access-control-denial counter.
func (c *Collector) RecordAccessDenial() {
	c.accessDenials.Add(1)
}

// --- Searchable index metrics ---

// RecordSearch increments the total-searches counter and records latency.
func (c *Collector) RecordSearch(d time.Duration) {
	c.searchesTotal.Add(1)
	c.searchLatency.Observe(float64(d.Microseconds()))
}

// RecordSearchRateLimited increments the rate-limited-search counter.
func (c *Collector) RecordSearchRateLimited() {
	c.searchRateLimited.Add(1)
}

// SetIndexSize sets the current indexed-file gauge.
func (c *Collector) SetIndexSize(n int64) {
	c.indexSize.Store(n)
}

// RecordTrapdoorIssued increments the trapdoors-issued counter.
func (c *Collector) RecordTrapdoorIssued() {
	c.trapdoorsIssued.Add(1)
}

// RecordTrapdoorRevoked increments the trapdoors-revoked counter.
func (c *Collector) RecordTrapdoorRevoked() {
	c.trapdoorsRevoked.Add(1)
}

// --- Error metrics ---

// RecordStorageError increments the storage-backend-error counter.
func (c *Collector) RecordStorageError() {
	c.storageErrors.Add(1)
}

// RecordProtocolError increments the wire-codec-error counter.
func (c *Collector) RecordProtocolError() {
	c.protocolErrors.Add(1)
}

// --- Snapshot ---

// Snapshot returns a point-in-time snapshot of all metrics.
type Snapshot struct {
	// Timestamp of the snapshot
	Timestamp time.Time

	// Uptime since collector creation
	Uptime time.Duration

	// Container lifecycle metrics
	FilesCreated    uint64
	FilesDecrypted  uint64
	FilesDownloaded uint64
	CreateFailed    uint64
	DecryptFailed   uint64

	// Traffic metrics
	BytesIn  uint64
	BytesOut uint64

	// Security metrics
	IntegrityFailures uint64
	AuthFailures      uint64
	AccessDenials     uint64

	// Searchable index metrics
	SearchesTotal     uint64
	SearchRateLimited uint64
	IndexSize         int64
	TrapdoorsIssued   uint64
	TrapdoorsRevoked  uint64

	// Error metrics
	StorageErrors  uint64
	ProtocolErrors uint64

	// Histogram summaries
	CreateLatency  HistogramSummary
	DecryptLatency HistogramSummary
	SearchLatency  HistogramSummary

	// Labels
	Labels Labels
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Timestamp:         time.Now(),
		Uptime:            time.Since(c.createdAt),
		FilesCreated:      c.filesCreated.Load(),
		FilesDecrypted:    c.filesDecrypted.Load(),
		FilesDownloaded:   c.filesDownloaded.Load(),
		CreateFailed:      c.createFailed.Load(),
		DecryptFailed:     c.decryptFailed.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		IntegrityFailures: c.integrityFailures.Load(),
		AuthFailures:      c.authFailures.Load(),
		AccessDenials:     c.accessDenials.Load(),
		SearchesTotal:     c.searchesTotal.Load(),
		SearchRateLimited: c.searchRateLimited.Load(),
		IndexSize:         c.indexSize.Load(),
		TrapdoorsIssued:   c.trapdoorsIssued.Load(),
		TrapdoorsRevoked:  c.trapdoorsRevoked.Load(),
		StorageErrors:     c.storageErrors.Load(),
		ProtocolErrors:    c.protocolErrors.Load(),
		CreateLatency:     c.createLatency.Summary(),
		DecryptLatency:    c.decryptLatency.Summary(),
		SearchLatency:     c.searchLatency.Summary(),
		Labels:            c.labels,
	}
}

// Reset clears all metrics (useful for testing).
func (c *Collector) Reset() {
	c.filesCreated.Store(0)
	c.filesDecrypted.Store(0)
	c.filesDownloaded.Store(0)
	c.createFailed.Store(0)
	c.decryptFailed.Store(0)
	c.bytesIn.Store(0)
	c.bytesOut.Store(0)
	c.integrityFailures.Store(0)
	c.authFailures.Store(0)
	c.accessDenials.Store(0)
	c.searchesTotal.Store(0)
	c.searchRateLimited.Store(0)
	c.indexSize.Store(0)
	c.trapdoorsIssued.Store(0)
	c.trapdoorsRevoked.Store(0)
	c.storageErrors.Store(0)
	c.protocolErrors.Store(0)
	c.createLatency.Reset()
	c.decryptLatency.Reset()
	c.searchLatency.Reset()
	c.createdAt = time.Now()
}

// --- Global Collector ---

var (
	globalCollector     *Collector
	globalCollectorOnce sync.Once
)

// Global returns the global metrics collector.
// Creates one with default settings if not already initialized.
func Global() *Collector {
	globalCollectorOnce.Do(func() {
		globalCollector = NewCollector(Labels{"instance": "default"})
	})
	return globalCollector
}

// SetGlobal sets the global metrics collector.
// Should be called during initialization before any metrics are recorded.
func SetGlobal(c *Collector) {
	globalCollector = c
}
