package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterLedgerMetrics_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()

	if err := RegisterLedgerMetrics(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := RegisterLedgerMetrics(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	SpendTotal.WithLabelValues("search", "granted").Inc()
	if n := testutil.CollectAndCount(SpendTotal, "creditgate_spend_total"); n == 0 {
		t.Error("expected spend_total series")
	}
}

func TestRemainingGauge(t *testing.T) {
	Remaining.WithLabelValues("verification").Set(-1)
	if v := testutil.ToFloat64(Remaining.WithLabelValues("verification")); v != -1 {
		t.Errorf("remaining = %f, want -1", v)
	}
}
