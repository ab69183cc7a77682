package http

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// latencyBuckets is the fixed cumulative bucket set used by every latency
// histogram: values are truncated (not rounded) into the first bucket
// they fit, so sub-millisecond observations land in the "<=1" bucket.
var latencyBuckets = []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000}

// Metrics holds every Prometheus metric in the exposition surface.
type Metrics struct {
	RequestsTotal        prometheus.Counter
	BlocksTotal          prometheus.Counter
	AuditSuppressedTotal prometheus.Counter
	TelemetryLinesTotal  prometheus.Counter
	TelemetryWriteErrors prometheus.Counter
	PluginBlocksTotal    *prometheus.CounterVec
	PluginEvalMsSum      *prometheus.CounterVec
	PluginEvalMsCount    *prometheus.CounterVec

	RequestLatencyMs prometheus.Histogram
	PluginLatencyMs  *prometheus.HistogramVec

	BuildInfo        *prometheus.GaugeVec
	ProcessStartTime prometheus.Gauge
	ProcessUptime    prometheus.GaugeFunc
	LogFileSizeBytes prometheus.GaugeFunc
}

// LogFileSizer is implemented by the telemetry sink; it lets the metrics
// registry report the current telemetry file size without importing the
// telemetry package directly.
type LogFileSizer interface {
	LogFileSizeBytes() int64
}

// NewMetrics creates and registers every metric under the "sentra"
// namespace, matching the exposition surface exactly.
func NewMetrics(reg prometheus.Registerer, version string, schemaVersion uint32, sizer LogFileSizer) *Metrics {
	start := time.Now()

	m := &Metrics{
		RequestsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "requests_total",
			Help:      "Total number of evaluated requests.",
		}),
		BlocksTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "blocks_total",
			Help:      "Total number of outward block decisions.",
		}),
		AuditSuppressedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "audit_suppressed_total",
			Help:      "Total number of internal blocks suppressed by audit-only mode.",
		}),
		TelemetryLinesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "telemetry_lines_total",
			Help:      "Total number of telemetry/audit lines written.",
		}),
		TelemetryWriteErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "telemetry_write_errors_total",
			Help:      "Total number of telemetry/audit write failures.",
		}),
		PluginBlocksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "plugin_blocks_total",
			Help:      "Total blocks attributed to a given plugin.",
		}, []string{"plugin"}),
		PluginEvalMsSum: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "plugin_eval_ms_sum",
			Help:      "Cumulative plugin evaluation time in milliseconds.",
		}, []string{"plugin"}),
		PluginEvalMsCount: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "plugin_eval_ms_count",
			Help:      "Count of plugin evaluations.",
		}, []string{"plugin"}),
		RequestLatencyMs: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "sentra",
			Name:      "request_latency_ms",
			Help:      "Total request latency in milliseconds.",
			Buckets:   latencyBuckets,
		}),
		PluginLatencyMs: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sentra",
			Name:      "plugin_latency_ms",
			Help:      "Per-plugin evaluation latency in milliseconds.",
			Buckets:   latencyBuckets,
		}, []string{"plugin"}),
		BuildInfo: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sentra",
			Name:      "build_info",
			Help:      "Build metadata; value is always 1.",
		}, []string{"version", "schemaVersion"}),
		ProcessStartTime: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "sentra",
			Name:      "process_start_time_seconds",
			Help:      "Unix timestamp of process start.",
		}),
	}

	m.BuildInfo.WithLabelValues(version, strconv.FormatUint(uint64(schemaVersion), 10)).Set(1)
	m.ProcessStartTime.Set(float64(start.Unix()))

	m.ProcessUptime = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sentra",
		Name:      "process_uptime_seconds",
		Help:      "Seconds since process start.",
	}, func() float64 {
		return time.Since(start).Seconds()
	})

	m.LogFileSizeBytes = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sentra",
		Name:      "log_file_size_bytes",
		Help:      "Current size of the telemetry log file in bytes.",
	}, func() float64 {
		if sizer == nil {
			return 0
		}
		return float64(sizer.LogFileSizeBytes())
	})

	return m
}

// ObservePluginTiming records a single plugin's timing against both the
// per-plugin sum/count counters and the latency histogram.
func (m *Metrics) ObservePluginTiming(plugin string, ms uint32) {
	m.PluginEvalMsSum.WithLabelValues(plugin).Add(float64(ms))
	m.PluginEvalMsCount.WithLabelValues(plugin).Inc()
	m.PluginLatencyMs.WithLabelValues(plugin).Observe(float64(ms))
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() { m.RequestsTotal.Inc() }

// IncBlocks increments the outward block counter.
func (m *Metrics) IncBlocks() { m.BlocksTotal.Inc() }

// IncAuditSuppressed increments the audit-suppressed counter.
func (m *Metrics) IncAuditSuppressed() { m.AuditSuppressedTotal.Inc() }

// IncTelemetryLines increments the telemetry lines-written counter.
func (m *Metrics) IncTelemetryLines() { m.TelemetryLinesTotal.Inc() }

// IncTelemetryWriteErrors increments the telemetry write-error counter.
func (m *Metrics) IncTelemetryWriteErrors() { m.TelemetryWriteErrors.Inc() }

// IncPluginBlock increments the per-plugin block counter for plugin.
func (m *Metrics) IncPluginBlock(plugin string) { m.PluginBlocksTotal.WithLabelValues(plugin).Inc() }

// ObserveRequestLatency records the total request latency.
func (m *Metrics) ObserveRequestLatency(ms uint32) { m.RequestLatencyMs.Observe(float64(ms)) }
