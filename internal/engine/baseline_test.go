package engine

import (
	"math"
	"testing"
	"time"
)

func monAM(store string) BaselineKey {
	return BaselineKey{StoreID: store, Cohort: CohortKey{Day: time.Monday, Slot: SlotAM}}
}

func metricRows(store string, values ...float64) []MetricRow {
	rows := make([]MetricRow, 0, len(values))
	for _, v := range values {
		rows = append(rows, MetricRow{StoreID: store, Cohort: CohortKey{Day: time.Monday, Slot: SlotAM}, Value: v})
	}
	return rows
}

func TestEstimateMeanAndStdDev(t *testing.T) {
	baselines := Estimate(metricRows("s1", 100, 110, 90, 105, 95))

	b, ok := baselines[monAM("s1")]
	if !ok {
		t.Fatal("expected baseline for Mon-AM cohort")
	}
	if b.Mean != 100 {
		t.Fatalf("mean: expected 100, got %v", b.Mean)
	}
	// Sample estimator: sqrt(250/4).
	want := math.Sqrt(62.5)
	if math.Abs(b.StdDev-want) > 1e-9 {
		t.Fatalf("std dev: expected %v, got %v", want, b.StdDev)
	}
	if b.Samples != 5 {
		t.Fatalf("samples: expected 5, got %d", b.Samples)
	}
}

func TestEstimateSingleSampleHasZeroStdDev(t *testing.T) {
	baselines := Estimate(metricRows("s1", 42))

	b := baselines[monAM("s1")]
	if b.Mean != 42 || b.StdDev != 0 || b.Samples != 1 {
		t.Fatalf("unexpected baseline %+v", b)
	}
}

func TestEstimateOutlierIncreasesStdDev(t *testing.T) {
	tight := Estimate(metricRows("s1", 100, 100, 100, 100))[monAM("s1")]
	if tight.StdDev != 0 {
		t.Fatalf("identical samples should have zero std dev, got %v", tight.StdDev)
	}

	loose := Estimate(metricRows("s1", 100, 100, 100, 100, 300))[monAM("s1")]
	if loose.StdDev <= tight.StdDev {
		t.Fatalf("outlier should increase std dev: %v -> %v", tight.StdDev, loose.StdDev)
	}
}

func TestEstimateGroupsByStoreAndCohort(t *testing.T) {
	rows := append(metricRows("s1", 10, 20), metricRows("s2", 100)...)
	rows = append(rows, MetricRow{StoreID: "s1", Cohort: CohortKey{Day: time.Friday, Slot: SlotPM}, Value: 999})

	baselines := Estimate(rows)
	if len(baselines) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(baselines))
	}
	if b := baselines[monAM("s1")]; b.Mean != 15 {
		t.Fatalf("s1 Mon-AM mean: expected 15, got %v", b.Mean)
	}
	if b := baselines[monAM("s2")]; b.Mean != 100 || b.StdDev != 0 {
		t.Fatalf("s2 Mon-AM: unexpected %+v", b)
	}
}

func TestEstimateIdempotent(t *testing.T) {
	rows := metricRows("s1", 1, 2, 3, 4, 5)

	first := Estimate(rows)
	second := Estimate(rows)
	if len(first) != len(second) {
		t.Fatal("repeated estimation changed group count")
	}
	for key, b := range first {
		if second[key] != b {
			t.Fatalf("repeated estimation diverged for %v: %+v vs %+v", key, b, second[key])
		}
	}
}
