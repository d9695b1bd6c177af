package engine

import "testing"

func TestStatisticalBoundary(t *testing.T) {
	p := DefaultParams()
	baseline := Baseline{Mean: 100, StdDev: 10, Samples: 10}

	// Boundary is 100 − 1.8·10 = 82.
	if v := p.ClassifyShift(81.99, baseline); !v.Statistical {
		t.Fatal("81.99 should trip the statistical rule")
	}
	if v := p.ClassifyShift(82.01, baseline); v.Statistical {
		t.Fatal("82.01 should not trip the statistical rule")
	}
}

func TestHardRuleBoundary(t *testing.T) {
	p := DefaultParams()

	// Floor is 100·0.6 = 60, independent of variance.
	for _, std := range []float64{0, 10} {
		baseline := Baseline{Mean: 100, StdDev: std}
		if v := p.ClassifyShift(59.99, baseline); !v.HardRule {
			t.Fatalf("std=%v: 59.99 should trip the hard rule", std)
		}
		if v := p.ClassifyShift(60.01, baseline); v.HardRule {
			t.Fatalf("std=%v: 60.01 should not trip the hard rule", std)
		}
	}
}

func TestZeroVarianceDisablesStatisticalRule(t *testing.T) {
	p := DefaultParams()
	baseline := Baseline{Mean: 100, StdDev: 0, Samples: 1}

	v := p.ClassifyShift(1, baseline)
	if v.Statistical {
		t.Fatal("statistical rule must be disabled without variance data")
	}
	if !v.HardRule {
		t.Fatal("hard rule should still fire as the safety net")
	}
}

func TestNoHistoryNeverFlags(t *testing.T) {
	p := DefaultParams()

	for _, value := range []float64{0, 0.01, 1, 1000} {
		v := p.ClassifyShift(value, Baseline{})
		if v.Anomalous() {
			t.Fatalf("value %v flagged with no history: %+v", value, v)
		}
	}
}

func TestVerdictReasons(t *testing.T) {
	p := DefaultParams()

	v := p.ClassifyShift(10, Baseline{Mean: 100, StdDev: 10, Samples: 5})
	if !v.Statistical || !v.HardRule {
		t.Fatalf("both rules should fire, got %+v", v)
	}
	if len(v.Reasons) != 2 || v.Reasons[0] != ReasonStatistical || v.Reasons[1] != ReasonHardRule {
		t.Fatalf("unexpected reasons %v", v.Reasons)
	}
}
