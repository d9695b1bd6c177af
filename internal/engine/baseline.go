package engine

import "math"

// BaselineKey identifies one store's cohort.
type BaselineKey struct {
	StoreID string
	Cohort  CohortKey
}

// Baseline holds the historical statistics of a metric for one cohort.
type Baseline struct {
	Mean    float64
	StdDev  float64
	Samples int
}

// MetricRow is one cohort-tagged historical observation.
type MetricRow struct {
	StoreID string
	Cohort  CohortKey
	Value   float64
}

// Estimate groups historical rows by (store, cohort) and computes the
// mean and sample standard deviation of each group. StdDev is 0 for
// groups with fewer than two members; cohorts absent from the input do
// not appear in the result, and lookups for them must fall back to the
// zero Baseline.
func Estimate(rows []MetricRow) map[BaselineKey]Baseline {
	sums := make(map[BaselineKey]float64)
	counts := make(map[BaselineKey]int)
	for _, row := range rows {
		key := BaselineKey{StoreID: row.StoreID, Cohort: row.Cohort}
		sums[key] += row.Value
		counts[key]++
	}

	means := make(map[BaselineKey]float64, len(sums))
	for key, sum := range sums {
		means[key] = sum / float64(counts[key])
	}

	sqDiffs := make(map[BaselineKey]float64)
	for _, row := range rows {
		key := BaselineKey{StoreID: row.StoreID, Cohort: row.Cohort}
		diff := row.Value - means[key]
		sqDiffs[key] += diff * diff
	}

	baselines := make(map[BaselineKey]Baseline, len(sums))
	for key, n := range counts {
		b := Baseline{Mean: means[key], Samples: n}
		if n >= 2 {
			b.StdDev = math.Sqrt(sqDiffs[key] / float64(n-1))
		}
		baselines[key] = b
	}
	return baselines
}
