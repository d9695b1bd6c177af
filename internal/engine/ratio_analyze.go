package engine

import (
	"sort"
	"time"
)

// ProductPairRow is one shift's aggregated counts of two competing
// products, as fetched from the warehouse line items.
type ProductPairRow struct {
	ShiftID  string
	StoreID  string
	OpenedAt time.Time
	CountA   float64
	CountB   float64
}

// RatioAssessment pairs a recent shift's product counts with the
// pair-variant verdict.
type RatioAssessment struct {
	Row     ProductPairRow
	Cohort  CohortKey
	Verdict RatioVerdict
}

// AnalyzeRatio applies the baseline/classify pattern to the product
// pair metric: product B's count gets a per-cohort baseline from the
// historical window, and recent shifts are checked against both the
// fixed ratio threshold and B's statistical dip. Rows without an
// opening time or outside the defined cohort bands are skipped.
func AnalyzeRatio(rows []ProductPairRow, now time.Time, p Params) []RatioAssessment {
	splitAt := now.AddDate(0, 0, -p.AnalysisDays)
	windowStart := now.AddDate(0, 0, -p.BaselineDays)

	var historical []MetricRow
	var recent []struct {
		row    ProductPairRow
		cohort CohortKey
	}

	for _, row := range rows {
		if row.OpenedAt.IsZero() || row.OpenedAt.Before(windowStart) {
			continue
		}
		cohort, ok := p.Classify(row.OpenedAt)
		if !ok {
			continue
		}
		if row.OpenedAt.Before(splitAt) {
			historical = append(historical, MetricRow{StoreID: row.StoreID, Cohort: cohort, Value: row.CountB})
			continue
		}
		recent = append(recent, struct {
			row    ProductPairRow
			cohort CohortKey
		}{row, cohort})
	}

	baselines := Estimate(historical)

	assessments := make([]RatioAssessment, 0, len(recent))
	for _, r := range recent {
		baseline := baselines[BaselineKey{StoreID: r.row.StoreID, Cohort: r.cohort}]
		assessments = append(assessments, RatioAssessment{
			Row:     r.row,
			Cohort:  r.cohort,
			Verdict: p.ClassifyPair(r.row.CountA, r.row.CountB, baseline),
		})
	}

	sort.Slice(assessments, func(i, j int) bool {
		a, b := assessments[i].Row, assessments[j].Row
		if a.StoreID != b.StoreID {
			return a.StoreID < b.StoreID
		}
		if !a.OpenedAt.Equal(b.OpenedAt) {
			return a.OpenedAt.Before(b.OpenedAt)
		}
		return a.ShiftID < b.ShiftID
	})
	return assessments
}
