// Package metrics owns the private Prometheus registry. Components never see
// it directly; they take small setter interfaces that *ServerMetrics
// satisfies.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/secretmark/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	// http
	inflight    prometheus.Gauge
	reqTotal    *prometheus.CounterVec
	reqDur      *prometheus.HistogramVec
	respBytes   *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
	panics      prometheus.Counter

	rateLimited  prometheus.Counter
	rateCapacity prometheus.Counter

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	// content
	contentSource   *prometheus.GaugeVec
	contentLoadedAt prometheus.Gauge
	contentBundle   *prometheus.GaugeVec
	watcherPolls    prometheus.Counter
	watcherSwaps    prometheus.Counter
	watcherErrors   *prometheus.CounterVec
	bundleLoadDur   prometheus.Histogram
	watcherLastOK   prometheus.Gauge
	watcherStale    prometheus.Gauge

	// secret markers
	scanRuns       prometheus.Counter
	scanContainers *prometheus.CounterVec
	replacements   prometheus.Counter
	scanDur        prometheus.Histogram
	decodes        *prometheus.CounterVec
	documents      prometheus.Gauge
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

// New builds a registry with the Go and process collectors plus every
// application metric. HTTP labels are limited to method, route and status.
func New() *ServerMetrics {
	m := &ServerMetrics{
		inflight: gauge("http_inflight_requests", "Current number of in-flight HTTP requests"),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx responses by method and route",
		}, []string{"method", "route"}),
		panics: counter("http_panic_total", "Total recovered handler panics"),

		rateLimited:  counter("http_requests_rate_limited_total", "Total requests rejected by the rate limiter"),
		rateCapacity: counter("http_requests_rate_limited_capacity_total", "Total times the limiter map was full"),

		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: gauge("profiling_active", "Whether continuous profiling is running (1) or not (0)"),

		contentSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "content_source_info",
			Help: "Source of the active content snapshot (value is always 1)",
		}, []string{"source"}),
		contentLoadedAt: gauge("content_loaded_timestamp_seconds", "Unix time the active snapshot was loaded"),
		contentBundle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "content_bundle_info",
			Help: "Hash of the active content bundle (value is always 1)",
		}, []string{"sha256"}),
		watcherPolls:  counter("content_watcher_polls_total", "Total watcher poll cycles"),
		watcherSwaps:  counter("content_watcher_swaps_total", "Total content snapshot swaps by the watcher"),
		watcherErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_watcher_errors_total",
			Help: "Total watcher errors by stage",
		}, []string{"type"}),
		bundleLoadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "content_bundle_load_duration_seconds",
			Help:    "Time to fetch, verify and extract a content bundle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		watcherLastOK: gauge("content_watcher_last_success_timestamp_seconds", "Unix time of the last successful poll"),
		watcherStale:  gauge("content_watcher_stale", "Whether the watcher is stale (1) or healthy (0)"),

		scanRuns: counter("secret_scan_runs_total", "Total scanner passes over a document"),
		scanContainers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secret_scan_containers_total",
			Help: "Containers seen by the scanner by state (processed, skipped)",
		}, []string{"state"}),
		replacements: counter("secret_replacements_total", "Total secret markers replaced"),
		scanDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "secret_scan_duration_seconds",
			Help:    "Time spent in one scanner pass",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secret_decode_total",
			Help: "Decode requests by result (ok, placeholder)",
		}, []string{"result"}),
		documents: gauge("secret_documents", "HTML documents held by the document store"),
	}

	m.reg = prometheus.NewRegistry()
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inflight, m.reqTotal, m.reqDur, m.respBytes, m.errorsTotal, m.panics,
		m.rateLimited, m.rateCapacity,
		m.buildInfo, m.profilingActive,
		m.contentSource, m.contentLoadedAt, m.contentBundle,
		m.watcherPolls, m.watcherSwaps, m.watcherErrors, m.bundleLoadDur, m.watcherLastOK, m.watcherStale,
		m.scanRuns, m.scanContainers, m.replacements, m.scanDur, m.decodes, m.documents,
	)
	m.handler = promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

func (m *ServerMetrics) IncHttpPanic() { m.panics.Inc() }

// SetBuildInfoFromVersion is called once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":        app,
		"component":  component,
		"version":    vi.Version,
		"commit":     vi.Commit,
		"build_id":   vi.BuildID,
		"build_date": vi.BuildDate,
		"vcs_dirty":  dirty,
		"go_version": vi.GoVersion,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) { m.profilingActive.Set(boolGauge(active)) }

// ratelimit.Metrics

func (m *ServerMetrics) IncRateLimitDenied()   { m.rateLimited.Inc() }
func (m *ServerMetrics) IncRateLimitCapacity() { m.rateCapacity.Inc() }

// content.SnapshotMetrics

func (m *ServerMetrics) SetContentSource(source string) {
	m.contentSource.Reset()
	m.contentSource.WithLabelValues(source).Set(1)
}

func (m *ServerMetrics) SetContentLoadedTimestamp(t time.Time) {
	m.contentLoadedAt.Set(float64(t.Unix()))
}

func (m *ServerMetrics) SetContentBundle(sha256 string) {
	m.contentBundle.Reset()
	m.contentBundle.WithLabelValues(sha256).Set(1)
}

// content.WatcherMetrics

func (m *ServerMetrics) IncWatcherPolls()                    { m.watcherPolls.Inc() }
func (m *ServerMetrics) IncWatcherSwaps()                    { m.watcherSwaps.Inc() }
func (m *ServerMetrics) IncWatcherError(stage string)        { m.watcherErrors.WithLabelValues(stage).Inc() }
func (m *ServerMetrics) ObserveBundleLoadDuration(s float64) { m.bundleLoadDur.Observe(s) }
func (m *ServerMetrics) SetWatcherLastSuccess(unix float64)  { m.watcherLastOK.Set(unix) }
func (m *ServerMetrics) SetWatcherStale(stale bool)          { m.watcherStale.Set(boolGauge(stale)) }

// scanner.Metrics

func (m *ServerMetrics) ObserveScan(d time.Duration, processed, skipped, replacements int) {
	m.scanRuns.Inc()
	m.scanContainers.WithLabelValues("processed").Add(float64(processed))
	m.scanContainers.WithLabelValues("skipped").Add(float64(skipped))
	m.replacements.Add(float64(replacements))
	m.scanDur.Observe(d.Seconds())
}

// secrethttp.Metrics

func (m *ServerMetrics) IncDecode(ok bool) {
	if ok {
		m.decodes.WithLabelValues("ok").Inc()
		return
	}
	m.decodes.WithLabelValues("placeholder").Inc()
}

// pages.Metrics

func (m *ServerMetrics) SetDocuments(n int) { m.documents.Set(float64(n)) }

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
