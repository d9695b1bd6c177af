package engine

// Reason tags for the product-pair variant.
const (
	ReasonHighRatio = "high product ratio"
	ReasonLowCount  = "low product count (statistical)"
)

// PairRow carries per-shift aggregated counts of two competing products.
type PairRow struct {
	StoreID string
	Cohort  CohortKey
	CountA  float64
	CountB  float64
}

// RatioVerdict is the outcome of the product-pair classification.
type RatioVerdict struct {
	Ratio     float64
	HighRatio bool
	LowCount  bool
	Reasons   []string
}

// Anomalous reports whether either condition fired.
func (v RatioVerdict) Anomalous() bool {
	return v.HighRatio || v.LowCount
}

// PairRatio derives countA/countB with the division-by-zero policy:
// a positive numerator over zero maps to the configured sentinel, and
// 0/0 is simply 0.
func (p Params) PairRatio(countA, countB float64) float64 {
	if countB == 0 {
		if countA > 0 {
			return p.RatioSentinel
		}
		return 0
	}
	return countA / countB
}

// ClassifyPair applies the two OR-combined ratio conditions: the fixed
// ratio threshold and the per-cohort statistical dip of product B's
// count. baselineB is the cohort baseline of countB (zero value when
// the cohort has no history).
func (p Params) ClassifyPair(countA, countB float64, baselineB Baseline) RatioVerdict {
	v := RatioVerdict{Ratio: p.PairRatio(countA, countB)}
	if v.Ratio > p.RatioThreshold {
		v.HighRatio = true
		v.Reasons = append(v.Reasons, ReasonHighRatio)
	}
	if baselineB.StdDev > 0 && countB < baselineB.Mean-p.Sensitivity*baselineB.StdDev {
		v.LowCount = true
		v.Reasons = append(v.Reasons, ReasonLowCount)
	}
	return v
}
