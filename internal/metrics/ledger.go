package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Ledger Prometheus metrics.
var (
	SpendTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditgate",
			Name:      "spend_total",
			Help:      "Spend attempts by resource and outcome",
		},
		[]string{"resource", "outcome"}, // outcome: "granted" / "denied"
	)

	SyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditgate",
			Name:      "sync_total",
			Help:      "Remote balance syncs by status",
		},
		[]string{"status"}, // "ok" / "error" / "skipped"
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "creditgate",
			Name:      "sync_duration_seconds",
			Help:      "Remote balance fetch duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	CASConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditgate",
			Name:      "cas_conflicts_total",
			Help:      "Lost compare-and-swap races per ledger",
		},
		[]string{"ledger"},
	)

	// Remaining is -1 for unlimited resources.
	Remaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditgate",
			Name:      "remaining",
			Help:      "Remaining quota per resource (-1 = unlimited)",
		},
		[]string{"resource"},
	)
)

// RegisterLedgerMetrics registers ledger metrics on reg (prometheus.DefaultRegisterer when nil).
// Safe to call more than once.
func RegisterLedgerMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{SpendTotal, SyncTotal, SyncDuration, CASConflictsTotal, Remaining} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err //nolint:wrapcheck // prometheus errors name the collector
		}
	}
	return nil
}
