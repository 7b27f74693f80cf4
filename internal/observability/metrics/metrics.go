package metrics

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "settlement_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	runTotal   *prometheus.CounterVec
	runLatency *prometheus.HistogramVec

	sellerOutcomes *prometheus.CounterVec

	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec

	refreshTotal *prometheus.CounterVec

	reportTotal   *prometheus.CounterVec
	reportLatency *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	eventRelayTotal *prometheus.CounterVec
)

// Init registers settlement metrics and DB-backed gauges.
func Init(db *sql.DB, logger *slog.Logger) {
	registerOnce.Do(func() {
		runTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Total monthly settlement runs by result",
			},
			[]string{"result"},
		)
		runLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "run_latency_seconds",
				Help:    "Monthly settlement run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		sellerOutcomes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "seller_outcomes_total",
				Help: "Per-seller settlement outcomes by status",
			},
			[]string{"status"},
		)

		dispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payout_dispatch_total",
				Help: "Payout provider dispatch calls by result",
			},
			[]string{"result"},
		)
		dispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "payout_dispatch_latency_seconds",
				Help:    "Payout provider dispatch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		refreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payout_refresh_total",
				Help: "Payout status refreshes by resulting status",
			},
			[]string{"status"},
		)

		reportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_total",
				Help: "Monthly report reads by result",
			},
			[]string{"result"},
		)
		reportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_latency_seconds",
				Help:    "Monthly report latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		eventRelayTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "event_relay_total",
				Help: "Events relayed to the external stream by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			runTotal,
			runLatency,
			sellerOutcomes,
			dispatchTotal,
			dispatchLatency,
			refreshTotal,
			reportTotal,
			reportLatency,
			exportTotal,
			exportLatency,
			eventRelayTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveRun records a settlement run.
func ObserveRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if runTotal != nil {
		runTotal.WithLabelValues(result).Inc()
	}
	if runLatency != nil {
		runLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncSellerOutcome counts a per-seller outcome.
func IncSellerOutcome(status string) {
	if status == "" {
		status = "unknown"
	}
	if sellerOutcomes != nil {
		sellerOutcomes.WithLabelValues(status).Inc()
	}
}

// ObserveDispatch records a payout provider call.
func ObserveDispatch(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if dispatchTotal != nil {
		dispatchTotal.WithLabelValues(result).Inc()
	}
	if dispatchLatency != nil {
		dispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncRefresh counts a status refresh by the batch status it produced.
func IncRefresh(status string) {
	if status == "" {
		status = "unknown"
	}
	if refreshTotal != nil {
		refreshTotal.WithLabelValues(status).Inc()
	}
}

// ObserveReport records a monthly report read.
func ObserveReport(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if reportTotal != nil {
		reportTotal.WithLabelValues(result).Inc()
	}
	if reportLatency != nil {
		reportLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncEventRelay counts an event relayed to the external stream.
func IncEventRelay(result string) {
	if result == "" {
		result = resultSuccess
	}
	if eventRelayTotal != nil {
		eventRelayTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
