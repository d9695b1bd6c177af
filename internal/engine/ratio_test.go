package engine

import (
	"fmt"
	"testing"
	"time"
)

func TestPairRatioSentinel(t *testing.T) {
	p := DefaultParams()

	if r := p.PairRatio(5, 0); r != 9.99 {
		t.Fatalf("5/0 should map to the sentinel, got %v", r)
	}
	if r := p.PairRatio(0, 0); r != 0 {
		t.Fatalf("0/0 should map to 0, got %v", r)
	}
	if r := p.PairRatio(3, 6); r != 0.5 {
		t.Fatalf("expected 0.5, got %v", r)
	}
}

func TestClassifyPairHighRatio(t *testing.T) {
	p := DefaultParams()

	v := p.ClassifyPair(5, 0, Baseline{})
	if !v.HighRatio || v.Ratio != 9.99 {
		t.Fatalf("sentinel ratio should exceed the threshold: %+v", v)
	}

	v = p.ClassifyPair(3, 6, Baseline{})
	if v.Anomalous() {
		t.Fatalf("ratio 0.5 below threshold should not flag: %+v", v)
	}

	v = p.ClassifyPair(7, 10, Baseline{})
	if !v.HighRatio {
		t.Fatalf("ratio 0.7 should exceed threshold 0.6: %+v", v)
	}
}

func TestClassifyPairLowCountDip(t *testing.T) {
	p := DefaultParams()
	baselineB := Baseline{Mean: 50, StdDev: 10, Samples: 8}

	// Dip threshold is 50 − 1.8·10 = 32.
	v := p.ClassifyPair(10, 31, baselineB)
	if !v.LowCount {
		t.Fatalf("count 31 should trip the dip condition: %+v", v)
	}
	if len(v.Reasons) != 1 || v.Reasons[0] != ReasonLowCount {
		t.Fatalf("unexpected reasons %v", v.Reasons)
	}

	v = p.ClassifyPair(10, 33, baselineB)
	if v.LowCount {
		t.Fatalf("count 33 should not trip the dip condition: %+v", v)
	}
}

func TestAnalyzeRatioSplitsWindows(t *testing.T) {
	p := DefaultParams()
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	local := time.FixedZone("local", 8*3600)

	var rows []ProductPairRow
	// Five historical Mondays 09:00 local with stable B counts.
	for i, count := range []float64{50, 52, 48, 51, 49} {
		rows = append(rows, ProductPairRow{
			ShiftID:  fmt.Sprintf("h%d", i+1),
			StoreID:  "s1",
			OpenedAt: time.Date(2025, 5, 26, 9, 0, 0, 0, local).AddDate(0, 0, 7*i),
			CountA:   10,
			CountB:   count,
		})
	}
	// Recent Monday with a B-count collapse and dominant A.
	rows = append(rows, ProductPairRow{
		ShiftID:  "r1",
		StoreID:  "s1",
		OpenedAt: time.Date(2025, 6, 30, 9, 0, 0, 0, local),
		CountA:   40,
		CountB:   5,
	})

	assessments := AnalyzeRatio(rows, now, p)
	if len(assessments) != 1 {
		t.Fatalf("only the recent shift should be assessed, got %d", len(assessments))
	}

	v := assessments[0].Verdict
	if !v.HighRatio {
		t.Fatalf("ratio 8.0 should exceed threshold: %+v", v)
	}
	if !v.LowCount {
		t.Fatalf("B count 5 is far below its baseline: %+v", v)
	}
}
