package metrics

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// PrometheusExporter bridges a Collector's point-in-time Snapshot into
// client_golang's registry/collector model: it implements
// prometheus.Collector itself, emitting one const metric or const histogram
// per Collect call rather than mirroring Collector's counters into a
// parallel set of client_golang counters.
type PrometheusExporter struct {
	collector *Collector
	namespace string
	registry  *prometheus.Registry

	filesCreatedDesc    *prometheus.Desc
	createFailedDesc    *prometheus.Desc
	filesDecryptedDesc  *prometheus.Desc
	decryptFailedDesc   *prometheus.Desc
	filesDownloadedDesc *prometheus.Desc

	bytesInDesc  *prometheus.Desc
	bytesOutDesc *prometheus.Desc

	integrityFailuresDesc *prometheus.Desc
	authFailuresDesc      *prometheus.Desc
	accessDenialsDesc     *prometheus.Desc

	searchesTotalDesc     *prometheus.Desc
	searchRateLimitedDesc *prometheus.Desc
	indexSizeDesc         *prometheus.Desc
	trapdoorsIssuedDesc   *prometheus.Desc
	trapdoorsRevokedDesc  *prometheus.Desc

	storageErrorsDesc  *prometheus.Desc
	protocolErrorsDesc *prometheus.Desc

	uptimeDesc *prometheus.Desc

	createLatencyDesc  *prometheus.Desc
	decryptLatencyDesc *prometheus.Desc
	searchLatencyDesc  *prometheus.Desc
}

// NewPrometheusExporter creates a new Prometheus exporter for the given
// collector. The namespace is prepended to all metric names (e.g., "zkim").
func NewPrometheusExporter(c *Collector, namespace string) *PrometheusExporter {
	labels := prometheus.Labels(c.Snapshot().Labels)
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, labels)
	}

	e := &PrometheusExporter{
		collector: c,
		namespace: namespace,

		filesCreatedDesc:    desc("files_created_total", "Total number of containers created"),
		createFailedDesc:    desc("files_create_failed_total", "Total number of failed Create calls"),
		filesDecryptedDesc:  desc("files_decrypted_total", "Total number of successful Decrypt calls"),
		decryptFailedDesc:   desc("files_decrypt_failed_total", "Total number of failed Decrypt calls"),
		filesDownloadedDesc: desc("files_downloaded_total", "Total number of Download calls"),

		bytesInDesc:  desc("bytes_in_total", "Total plaintext bytes sealed via Create"),
		bytesOutDesc: desc("bytes_out_total", "Total plaintext bytes returned via Decrypt/Download"),

		integrityFailuresDesc: desc("integrity_failures_total", "Total Merkle/signature integrity failures"),
		authFailuresDesc:      desc("auth_failures_total", "Total AEAD authentication failures"),
		accessDenialsDesc:     desc("access_denials_total", "Total ACL access denials"),

		searchesTotalDesc:     desc("searches_total", "Total search queries served"),
		searchRateLimitedDesc: desc("search_rate_limited_total", "Total search queries rejected for rate limiting"),
		indexSizeDesc:         desc("index_size", "Number of files currently indexed"),
		trapdoorsIssuedDesc:   desc("trapdoors_issued_total", "Total search trapdoors issued"),
		trapdoorsRevokedDesc:  desc("trapdoors_revoked_total", "Total search trapdoors revoked"),

		storageErrorsDesc:  desc("storage_errors_total", "Total storage backend errors"),
		protocolErrorsDesc: desc("protocol_errors_total", "Total wire codec errors"),

		uptimeDesc: desc("uptime_seconds", "Time since the collector was created"),

		createLatencyDesc:  desc("create_duration_milliseconds", "Create call duration in milliseconds"),
		decryptLatencyDesc: desc("decrypt_duration_microseconds", "Decrypt call duration in microseconds"),
		searchLatencyDesc:  desc("search_duration_microseconds", "Search call duration in microseconds"),
	}

	e.registry = prometheus.NewRegistry()
	e.registry.MustRegister(e)
	return e
}

// Describe implements prometheus.Collector.
func (e *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.filesCreatedDesc
	ch <- e.createFailedDesc
	ch <- e.filesDecryptedDesc
	ch <- e.decryptFailedDesc
	ch <- e.filesDownloadedDesc
	ch <- e.bytesInDesc
	ch <- e.bytesOutDesc
	ch <- e.integrityFailuresDesc
	ch <- e.authFailuresDesc
	ch <- e.accessDenialsDesc
	ch <- e.searchesTotalDesc
	ch <- e.searchRateLimitedDesc
	ch <- e.indexSizeDesc
	ch <- e.trapdoorsIssuedDesc
	ch <- e.trapdoorsRevokedDesc
	ch <- e.storageErrorsDesc
	ch <- e.protocolErrorsDesc
	ch <- e.uptimeDesc
	ch <- e.createLatencyDesc
	ch <- e.decryptLatencyDesc
	ch <- e.searchLatencyDesc
}

// Collect implements prometheus.Collector: it takes one Snapshot of the
// underlying Collector and emits const metrics from it, so every metric in
// a single scrape reflects the same instant rather than drifting counters
// read independently.
func (e *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.collector.Snapshot()

	ch <- prometheus.MustNewConstMetric(e.filesCreatedDesc, prometheus.CounterValue, float64(snap.FilesCreated))
	ch <- prometheus.MustNewConstMetric(e.createFailedDesc, prometheus.CounterValue, float64(snap.CreateFailed))
	ch <- prometheus.MustNewConstMetric(e.filesDecryptedDesc, prometheus.CounterValue, float64(snap.FilesDecrypted))
	ch <- prometheus.MustNewConstMetric(e.decryptFailedDesc, prometheus.CounterValue, float64(snap.DecryptFailed))
	ch <- prometheus.MustNewConstMetric(e.filesDownloadedDesc, prometheus.CounterValue, float64(snap.FilesDownloaded))

	ch <- prometheus.MustNewConstMetric(e.bytesInDesc, prometheus.CounterValue, float64(snap.BytesIn))
	ch <- prometheus.MustNewConstMetric(e.bytesOutDesc, prometheus.CounterValue, float64(snap.BytesOut))

	ch <- prometheus.MustNewConstMetric(e.integrityFailuresDesc, prometheus.CounterValue, float64(snap.IntegrityFailures))
	ch <- prometheus.MustNewConstMetric(e.authFailuresDesc, prometheus.CounterValue, float64(snap.AuthFailures))
	ch <- prometheus.MustNewConstMetric(e.accessDenialsDesc, prometheus.CounterValue, float64(snap.AccessDenials))

	ch <- prometheus.MustNewConstMetric(e.searchesTotalDesc, prometheus.CounterValue, float64(snap.SearchesTotal))
	ch <- prometheus.MustNewConstMetric(e.searchRateLimitedDesc, prometheus.CounterValue, float64(snap.SearchRateLimited))
	ch <- prometheus.MustNewConstMetric(e.indexSizeDesc, prometheus.GaugeValue, float64(snap.IndexSize))
	ch <- prometheus.MustNewConstMetric(e.trapdoorsIssuedDesc, prometheus.CounterValue, float64(snap.TrapdoorsIssued))
	ch <- prometheus.MustNewConstMetric(e.trapdoorsRevokedDesc, prometheus.CounterValue, float64(snap.TrapdoorsRevoked))

	ch <- prometheus.MustNewConstMetric(e.storageErrorsDesc, prometheus.CounterValue, float64(snap.StorageErrors))
	ch <- prometheus.MustNewConstMetric(e.protocolErrorsDesc, prometheus.CounterValue, float64(snap.ProtocolErrors))

	ch <- prometheus.MustNewConstMetric(e.uptimeDesc, prometheus.GaugeValue, snap.Uptime.Seconds())

	if m := constHistogram(e.createLatencyDesc, snap.CreateLatency); m != nil {
		ch <- m
	}
	if m := constHistogram(e.decryptLatencyDesc, snap.DecryptLatency); m != nil {
		ch <- m
	}
	if m := constHistogram(e.searchLatencyDesc, snap.SearchLatency); m != nil {
		ch <- m
	}
}

// constHistogram converts a HistogramSummary into a client_golang const
// histogram. Summary's bucket counts are already cumulative (Histogram.
// Summary), matching what NewConstHistogram expects; the overflow (+Inf)
// entry is dropped from the bucket map since client_golang derives it from
// the total count. Returns nil for an empty summary (no observations yet).
func constHistogram(d *prometheus.Desc, s HistogramSummary) prometheus.Metric {
	if s.Count == 0 {
		return nil
	}
	buckets := make(map[float64]uint64, len(s.Buckets))
	for _, b := range s.Buckets {
		if b.UpperBound == s.Buckets[len(s.Buckets)-1].UpperBound {
			continue
		}
		buckets[b.UpperBound] = b.Count
	}
	return prometheus.MustNewConstHistogram(d, s.Count, s.Sum, buckets)
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// WriteMetrics writes all metrics in Prometheus text format to the writer,
// gathering through the same registry Handler serves from.
func (e *PrometheusExporter) WriteMetrics(w io.Writer) {
	mfs, err := e.registry.Gather()
	if err != nil {
		return
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range mfs {
		_ = enc.Encode(mf)
	}
}

// ServePrometheus starts an HTTP server serving Prometheus metrics for c.
// This is a convenience function for simple use cases; cmd/zkim's
// --metrics-addr flag uses Server instead.
func ServePrometheus(addr string, c *Collector, namespace string) error {
	exp := NewPrometheusExporter(c, namespace)
	mux := http.NewServeMux()
	mux.Handle("/metrics", exp.Handler())
	return newHTTPServer(addr, mux).ListenAndServe()
}
