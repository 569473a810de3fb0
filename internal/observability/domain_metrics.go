package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ScanOutcomeOK           = "ok"
	ScanOutcomeOpenFailed   = "open_failed"
	ScanOutcomeFilterSyntax = "filter_syntax"
	ScanOutcomeFailed       = "failed"
)

var (
	scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrowscan_scans_total",
			Help: "Total number of scan invocations by outcome.",
		},
		[]string{"outcome"},
	)
	rowsEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arrowscan_rows_emitted_total",
			Help: "Total number of rows converted and emitted by scans.",
		},
	)
	scanDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arrowscan_scan_duration_ms",
			Help:    "Scan latency in milliseconds, from open to last emitted row.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
	unsupportedTypeWarningsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arrowscan_unsupported_type_warnings_total",
			Help: "Total number of columns exposed as text because their Arrow type has no relational equivalent.",
		},
	)
	placeholderConversionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arrowscan_placeholder_conversions_total",
			Help: "Total number of top-level cells converted to an unsupported type placeholder.",
		},
	)
	providerFetchBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arrowscan_provider_fetch_bytes_total",
			Help: "Total bytes of data files fetched from the object store.",
		},
	)
	providerFetchDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arrowscan_provider_fetch_duration_ms",
			Help:    "Latency of fetching and decoding one data file in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	exportRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arrowscan_export_rows_total",
			Help: "Total number of rows inserted into Postgres by the exporter.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		scansTotal,
		rowsEmittedTotal,
		scanDurationMs,
		unsupportedTypeWarningsTotal,
		placeholderConversionsTotal,
		providerFetchBytesTotal,
		providerFetchDurationMs,
		exportRowsTotal,
	)
}

func ObserveScan(outcome string, rows int64, elapsed time.Duration) {
	scansTotal.WithLabelValues(outcome).Inc()
	if rows > 0 {
		rowsEmittedTotal.Add(float64(rows))
	}
	scanDurationMs.Observe(float64(elapsed.Milliseconds()))
}

func AddUnsupportedTypeWarnings(n int) {
	if n > 0 {
		unsupportedTypeWarningsTotal.Add(float64(n))
	}
}

func AddPlaceholderConversions(n int64) {
	if n > 0 {
		placeholderConversionsTotal.Add(float64(n))
	}
}

func ObserveProviderFetch(bytes int64, elapsed time.Duration) {
	if bytes > 0 {
		providerFetchBytesTotal.Add(float64(bytes))
	}
	providerFetchDurationMs.Observe(float64(elapsed.Milliseconds()))
}

func AddExportRows(n int64) {
	if n > 0 {
		exportRowsTotal.Add(float64(n))
	}
}
