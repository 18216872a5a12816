package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlsql_resolutions_total",
			Help: "Total number of resolved requests by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	gatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlsql_gateway_calls_total",
			Help: "Total number of model gateway calls by mode and status.",
		},
		[]string{"mode", "status"},
	)
	gatewayLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlsql_gateway_latency_ms",
			Help:    "Model gateway round-trip latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
		[]string{"mode"},
	)
	historyEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlsql_history_entries",
			Help: "Current number of entries in the translation history.",
		},
	)
	historyExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlsql_history_exports_total",
			Help: "Total number of history snapshot exports by status.",
		},
		[]string{"status"},
	)
	sandboxChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlsql_sandbox_checks_total",
			Help: "Total number of SQL dry-run checks by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		resolutionsTotal,
		gatewayCallsTotal,
		gatewayLatencyMs,
		historyEntries,
		historyExportsTotal,
		sandboxChecksTotal,
	)
}

func ObserveResolution(operation, outcome string) {
	resolutionsTotal.WithLabelValues(operation, outcome).Inc()
}

func ObserveGatewayCall(mode string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	gatewayCallsTotal.WithLabelValues(mode, status).Inc()
	gatewayLatencyMs.WithLabelValues(mode).Observe(float64(elapsed.Milliseconds()))
}

func SetHistoryEntries(count int) {
	if count < 0 {
		count = 0
	}
	historyEntries.Set(float64(count))
}

func ObserveHistoryExport(err error) {
	if err != nil {
		historyExportsTotal.WithLabelValues("failed").Inc()
		return
	}
	historyExportsTotal.WithLabelValues("ok").Inc()
}

func ObserveSandboxCheck(valid bool) {
	if valid {
		sandboxChecksTotal.WithLabelValues("valid").Inc()
		return
	}
	sandboxChecksTotal.WithLabelValues("invalid").Inc()
}
