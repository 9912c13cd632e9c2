// Package metrics holds the Prometheus collectors of the pricing service.
// They are registered on the default registry and served by /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "decant"

var (
	// AuditRuns counts integrity runs by mode ("check" | "fix") and result ("ok" | "error").
	AuditRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "runs_total",
			Help:      "Total price integrity runs.",
		},
		[]string{"mode", "result"},
	)

	AuditDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "duration_seconds",
			Help:      "Duration of price integrity runs in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	// Discrepancies is the number of findings of the last check, by action.
	Discrepancies = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "discrepancies",
			Help:      "Discrepancies found by the last integrity check.",
		},
		[]string{"action"},
	)

	AutoFixResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "autofix_total",
			Help:      "Auto-fix outcomes.",
		},
		[]string{"outcome"}, // "fixed" | "skipped" | "failed"
	)

	PriceWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "price_writes_total",
			Help:      "Persisted price writes by reason.",
		},
		[]string{"reason"},
	)

	DriftWarnings = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pricing",
		Name:      "drift_warnings_total",
		Help:      "Stored prices served while diverging from the formula.",
	})

	SizesDefaultFallback = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pricing",
		Name:      "sizes_default_fallback_total",
		Help:      "Size resolutions that fell back to the hard-coded default list.",
	})

	RepairQueue = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "repair_requests_total",
			Help:      "Background repair requests by status.",
		},
		[]string{"status"}, // "queued" | "duplicate" | "dropped" | "done" | "failed"
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Storefront price cache lookups.",
		},
		[]string{"result"}, // "hit" | "miss"
	)
)

func init() {
	prometheus.MustRegister(
		AuditRuns,
		AuditDuration,
		Discrepancies,
		AutoFixResults,
		PriceWrites,
		DriftWarnings,
		SizesDefaultFallback,
		RepairQueue,
		CacheLookups,
	)
}
