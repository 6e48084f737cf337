package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	metricPrefix = "reebill_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once
	registry     = prometheus.NewRegistry()

	chargeComputeTotal   *prometheus.CounterVec
	chargeComputeLatency *prometheus.HistogramVec
	chargeErrorsTotal    *prometheus.CounterVec

	reebillComputeTotal   *prometheus.CounterVec
	reebillComputeLatency *prometheus.HistogramVec
	reebillIssuedTotal    *prometheus.CounterVec
)

// Registry returns the registry all collectors are registered with.
func Registry() *prometheus.Registry { return registry }

// Init registers metrics and, when db is set, DB-backed gauges. Calls after
// the first are no-ops.
func Init(db *sql.DB, logger zerolog.Logger) {
	registerOnce.Do(func() {
		chargeComputeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "charge_compute_total",
				Help: "Total utility bill charge computations by result",
			},
			[]string{"result"},
		)
		chargeComputeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "charge_compute_latency_seconds",
				Help:    "Utility bill charge computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		chargeErrorsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "charge_errors_total",
				Help: "Total charges that failed to evaluate by kind",
			},
			[]string{"kind"},
		)

		reebillComputeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reebill_compute_total",
				Help: "Total reebill computations by result",
			},
			[]string{"result"},
		)
		reebillComputeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "reebill_compute_latency_seconds",
				Help:    "Reebill computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		reebillIssuedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reebill_issued_total",
				Help: "Total issued reebills by kind",
			},
			[]string{"kind"},
		)

		registry.MustRegister(
			chargeComputeTotal,
			chargeComputeLatency,
			chargeErrorsTotal,
			reebillComputeTotal,
			reebillComputeLatency,
			reebillIssuedTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveChargeCompute records utility bill compute latency and result.
func ObserveChargeCompute(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if chargeComputeTotal != nil {
		chargeComputeTotal.WithLabelValues(result).Inc()
	}
	if chargeComputeLatency != nil {
		chargeComputeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncChargeError increments the failed charge counter.
func IncChargeError(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if chargeErrorsTotal != nil {
		chargeErrorsTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveReeBillCompute records reebill compute latency and result.
func ObserveReeBillCompute(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if reebillComputeTotal != nil {
		reebillComputeTotal.WithLabelValues(result).Inc()
	}
	if reebillComputeLatency != nil {
		reebillComputeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncReeBillIssued increments the issued counter.
func IncReeBillIssued(kind string) {
	if kind == "" {
		kind = IssueKindOriginal
	}
	if reebillIssuedTotal != nil {
		reebillIssuedTotal.WithLabelValues(kind).Inc()
	}
}

// WriteTextfile writes the current metrics in the node exporter textfile
// format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	ChargeErrorSyntax  = "syntax"
	ChargeErrorFormula = "formula"

	IssueKindOriginal   = "original"
	IssueKindCorrection = "correction"
)
