package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ShiftRecord is one POS shift as fetched from the warehouse.
type ShiftRecord struct {
	ID         string
	StoreID    string
	OpenedAt   time.Time
	ClosedAt   *time.Time
	TotalSales decimal.Decimal
}

// ShiftAssessment pairs a recent shift with its verdict and run flag.
type ShiftAssessment struct {
	Record         ShiftRecord
	Cohort         CohortKey
	Baseline       Baseline
	Verdict        Verdict
	SalesDiff      float64
	PerformancePct float64
	InAlertRun     bool
}

// WeeklySummary compares the analysis window against the average
// baseline week for one store.
type WeeklySummary struct {
	RecentTotal       float64
	AvgWeeklyBaseline float64
	Difference        float64
	PctChange         float64
	HasBaseline       bool
}

// StoreReport aggregates one store's assessments, ordered by opening time.
type StoreReport struct {
	StoreID string
	Weekly  WeeklySummary
	Shifts  []ShiftAssessment
}

// Report is the full output of one engine invocation.
type Report struct {
	GeneratedAt time.Time
	Rejected    int
	Stores      []StoreReport
}

// AlertRuns returns, per store, the assessments that belong to an alert
// run. Stores with no flagged run are omitted.
func (r Report) AlertRuns() map[string][]ShiftAssessment {
	out := make(map[string][]ShiftAssessment)
	for _, store := range r.Stores {
		for _, shift := range store.Shifts {
			if shift.InAlertRun {
				out[store.StoreID] = append(out[store.StoreID], shift)
			}
		}
	}
	return out
}

// Analyze runs the whole detection pass over a rolling window of shift
// rows: cohort classification, per-store baselines from the historical
// portion, anomaly classification and run detection over the recent
// portion. now is caller-supplied so reruns on identical input are
// identical. Rows without an opening time are dropped and counted;
// negative sales are a caller bug and fail loudly.
func Analyze(rows []ShiftRecord, now time.Time, p Params) (Report, error) {
	report := Report{GeneratedAt: now}

	splitAt := now.AddDate(0, 0, -p.AnalysisDays)
	windowStart := now.AddDate(0, 0, -p.BaselineDays)

	type taggedShift struct {
		record ShiftRecord
		cohort CohortKey
		value  float64
	}

	var historical []MetricRow
	recentByStore := make(map[string][]taggedShift)
	baselineTotals := make(map[string]float64)

	for _, row := range rows {
		if row.OpenedAt.IsZero() {
			report.Rejected++
			continue
		}
		if row.TotalSales.IsNegative() {
			return Report{}, fmt.Errorf("engine: shift %s has negative total_sales %s", row.ID, row.TotalSales)
		}
		if row.OpenedAt.Before(windowStart) {
			continue
		}

		cohort, ok := p.Classify(row.OpenedAt)
		if !ok {
			continue
		}

		value := row.TotalSales.InexactFloat64()
		if row.OpenedAt.Before(splitAt) {
			historical = append(historical, MetricRow{StoreID: row.StoreID, Cohort: cohort, Value: value})
			baselineTotals[row.StoreID] += value
			continue
		}
		recentByStore[row.StoreID] = append(recentByStore[row.StoreID], taggedShift{record: row, cohort: cohort, value: value})
	}

	baselines := Estimate(historical)

	storeIDs := make([]string, 0, len(recentByStore))
	for storeID := range recentByStore {
		storeIDs = append(storeIDs, storeID)
	}
	sort.Strings(storeIDs)

	for _, storeID := range storeIDs {
		shifts := recentByStore[storeID]
		sort.Slice(shifts, func(i, j int) bool {
			if shifts[i].record.OpenedAt.Equal(shifts[j].record.OpenedAt) {
				return shifts[i].record.ID < shifts[j].record.ID
			}
			return shifts[i].record.OpenedAt.Before(shifts[j].record.OpenedAt)
		})
		for i := 1; i < len(shifts); i++ {
			prev, cur := shifts[i-1].record, shifts[i].record
			if cur.OpenedAt.Equal(prev.OpenedAt) && cur.ID == prev.ID {
				return Report{}, fmt.Errorf("engine: store %s has duplicate shift %s at %s", storeID, cur.ID, cur.OpenedAt)
			}
		}

		store := StoreReport{StoreID: storeID}
		flags := make([]bool, len(shifts))
		recentTotal := 0.0

		for i, shift := range shifts {
			baseline := baselines[BaselineKey{StoreID: storeID, Cohort: shift.cohort}]
			verdict := p.ClassifyShift(shift.value, baseline)
			flags[i] = verdict.Anomalous()
			recentTotal += shift.value

			assessment := ShiftAssessment{
				Record:    shift.record,
				Cohort:    shift.cohort,
				Baseline:  baseline,
				Verdict:   verdict,
				SalesDiff: shift.value - baseline.Mean,
			}
			if baseline.Mean != 0 {
				assessment.PerformancePct = assessment.SalesDiff / baseline.Mean * 100
			}
			store.Shifts = append(store.Shifts, assessment)
		}

		marked := FindRuns(flags, p.MinRunLength)
		for i := range store.Shifts {
			store.Shifts[i].InAlertRun = marked[i]
		}

		store.Weekly = weeklySummary(recentTotal, baselineTotals[storeID], p)
		report.Stores = append(report.Stores, store)
	}

	return report, nil
}

func weeklySummary(recentTotal, baselineTotal float64, p Params) WeeklySummary {
	summary := WeeklySummary{RecentTotal: recentTotal}

	weeks := float64(p.BaselineDays-p.AnalysisDays) / 7.0
	if weeks <= 0 {
		return summary
	}
	avgWeekly := baselineTotal / weeks
	if avgWeekly <= 0 {
		return summary
	}

	summary.AvgWeeklyBaseline = avgWeekly
	summary.Difference = recentTotal - avgWeekly
	summary.PctChange = summary.Difference / avgWeekly * 100
	summary.HasBaseline = true
	return summary
}
