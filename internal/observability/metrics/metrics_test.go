package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	Init(nil, nil)

	ObserveRun(ResultSuccess, 2*time.Second)
	IncSellerOutcome("paid")
	IncSellerOutcome("paid")
	IncSellerOutcome("")
	ObserveExport("xlsx", ResultError, time.Millisecond)

	if got := testutil.ToFloat64(runTotal.WithLabelValues(ResultSuccess)); got != 1 {
		t.Fatalf("runs = %v", got)
	}
	if got := testutil.ToFloat64(sellerOutcomes.WithLabelValues("paid")); got != 2 {
		t.Fatalf("paid outcomes = %v", got)
	}
	if got := testutil.ToFloat64(sellerOutcomes.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("unknown outcomes = %v", got)
	}
	if got := testutil.ToFloat64(exportTotal.WithLabelValues("xlsx", ResultError)); got != 1 {
		t.Fatalf("export errors = %v", got)
	}
}
