package engine

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var (
	testNow   = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	testLocal = time.FixedZone("local", 8*3600)
)

// historicalMondays builds five Monday 09:00 shifts ending well before
// the analysis window.
func historicalMondays(store string, values ...float64) []ShiftRecord {
	rows := make([]ShiftRecord, 0, len(values))
	for i, v := range values {
		rows = append(rows, ShiftRecord{
			ID:         fmt.Sprintf("%s-hist-%d", store, i+1),
			StoreID:    store,
			OpenedAt:   time.Date(2025, 5, 26, 9, 0, 0, 0, testLocal).AddDate(0, 0, 7*i),
			TotalSales: decimal.NewFromFloat(v),
		})
	}
	return rows
}

func recentShift(store, id string, day int, hour int, sales float64) ShiftRecord {
	return ShiftRecord{
		ID:         id,
		StoreID:    store,
		OpenedAt:   time.Date(2025, 6, day, hour, 0, 0, 0, testLocal),
		TotalSales: decimal.NewFromFloat(sales),
	}
}

func TestAnalyzeEndToEnd(t *testing.T) {
	p := DefaultParams()

	rows := historicalMondays("X", 100, 110, 90, 105, 95)
	rows = append(rows, recentShift("X", "X-r1", 30, 9, 70))

	report, err := Analyze(rows, testNow, p)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(report.Stores) != 1 {
		t.Fatalf("expected one store, got %d", len(report.Stores))
	}

	store := report.Stores[0]
	if store.StoreID != "X" || len(store.Shifts) != 1 {
		t.Fatalf("unexpected store report %+v", store)
	}

	shift := store.Shifts[0]
	if shift.Cohort.String() != "Mon-AM" {
		t.Fatalf("expected Mon-AM cohort, got %s", shift.Cohort)
	}
	if shift.Baseline.Mean != 100 || shift.Baseline.Samples != 5 {
		t.Fatalf("unexpected baseline %+v", shift.Baseline)
	}
	// 70 < 100 − 1.8·std, but 70 is above the 60 hard floor.
	if !shift.Verdict.Statistical {
		t.Fatal("statistical rule should fire for value 70")
	}
	if shift.Verdict.HardRule {
		t.Fatal("hard rule should not fire for value 70")
	}
	if !shift.Verdict.Anomalous() {
		t.Fatal("shift should be anomalous")
	}
	if shift.SalesDiff != -30 || shift.PerformancePct != -30 {
		t.Fatalf("unexpected performance numbers %+v", shift)
	}
}

func TestAnalyzeRejectsRowsWithoutOpenedAt(t *testing.T) {
	rows := []ShiftRecord{
		{ID: "bad", StoreID: "X", TotalSales: decimal.NewFromInt(10)},
		recentShift("X", "ok", 30, 9, 10),
	}

	report, err := Analyze(rows, testNow, DefaultParams())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Rejected != 1 {
		t.Fatalf("expected 1 rejected row, got %d", report.Rejected)
	}
	if len(report.Stores) != 1 || len(report.Stores[0].Shifts) != 1 {
		t.Fatal("valid row should still be assessed")
	}
}

func TestAnalyzeNegativeSalesFailsLoudly(t *testing.T) {
	rows := []ShiftRecord{{
		ID:         "neg",
		StoreID:    "X",
		OpenedAt:   time.Date(2025, 6, 30, 9, 0, 0, 0, testLocal),
		TotalSales: decimal.NewFromInt(-5),
	}}

	if _, err := Analyze(rows, testNow, DefaultParams()); err == nil {
		t.Fatal("negative total_sales is a caller bug and must error")
	}
}

func TestAnalyzeDuplicateShiftFailsLoudly(t *testing.T) {
	dup := recentShift("X", "same", 30, 9, 10)
	rows := []ShiftRecord{dup, dup}

	if _, err := Analyze(rows, testNow, DefaultParams()); err == nil {
		t.Fatal("duplicate shift within a store must error")
	}
}

func TestAnalyzeMarksAlertRuns(t *testing.T) {
	p := DefaultParams()

	// History establishes a tight baseline across the week's cohorts.
	var rows []ShiftRecord
	for week := 0; week < 5; week++ {
		for day := 0; day < 7; day++ {
			opened := time.Date(2025, 5, 12, 9, 0, 0, 0, testLocal).AddDate(0, 0, 7*week+day)
			rows = append(rows, ShiftRecord{
				ID:         fmt.Sprintf("h-%d-%d", week, day),
				StoreID:    "X",
				OpenedAt:   opened,
				TotalSales: decimal.NewFromFloat(100 + float64(day)),
			})
		}
	}

	// Recent week: F F T T T F T T against the ~100 baselines.
	sales := []float64{100, 101, 10, 10, 10, 100, 10, 10}
	for i, v := range sales {
		rows = append(rows, recentShift("X", fmt.Sprintf("r%d", i), 23+i, 9, v))
	}

	// Split point sits exactly on the first recent shift.
	now := time.Date(2025, 6, 30, 1, 0, 0, 0, time.UTC)
	report, err := Analyze(rows, now, p)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(report.Stores) != 1 {
		t.Fatalf("expected one store, got %d", len(report.Stores))
	}

	var marked []bool
	for _, shift := range report.Stores[0].Shifts {
		marked = append(marked, shift.InAlertRun)
	}
	want := []bool{false, false, true, true, true, false, false, false}
	if !reflect.DeepEqual(marked, want) {
		t.Fatalf("expected run marks %v, got %v", want, marked)
	}

	runs := report.AlertRuns()
	if len(runs["X"]) != 3 {
		t.Fatalf("expected 3 shifts in the alert run, got %d", len(runs["X"]))
	}
}

func TestAnalyzeRunsNeverSpanStores(t *testing.T) {
	p := DefaultParams()
	p.MinRunLength = 2

	var rows []ShiftRecord
	for _, store := range []string{"A", "B"} {
		rows = append(rows, historicalMondays(store, 100, 100, 100, 100)...)
	}
	// One anomalous shift per store; interleaved in time they would
	// form a run of two, but runs are computed per store.
	rows = append(rows, recentShift("A", "a1", 30, 9, 5))
	rows = append(rows, recentShift("B", "b1", 30, 10, 5))

	report, err := Analyze(rows, testNow, p)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, store := range report.Stores {
		for _, shift := range store.Shifts {
			if shift.InAlertRun {
				t.Fatalf("store %s: single anomaly must not be a run", store.StoreID)
			}
		}
	}
}

func TestAnalyzeWeeklySummary(t *testing.T) {
	p := DefaultParams()

	rows := historicalMondays("X", 100, 110, 90, 105, 95)
	rows = append(rows, recentShift("X", "r1", 30, 9, 70))

	report, err := Analyze(rows, testNow, p)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	weekly := report.Stores[0].Weekly
	if !weekly.HasBaseline {
		t.Fatal("weekly summary should have a baseline")
	}
	if weekly.RecentTotal != 70 {
		t.Fatalf("recent total: expected 70, got %v", weekly.RecentTotal)
	}
	// 500 total over (90−7)/7 weeks.
	wantAvg := 500 / (83.0 / 7.0)
	if diff := weekly.AvgWeeklyBaseline - wantAvg; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("avg weekly baseline: expected %v, got %v", wantAvg, weekly.AvgWeeklyBaseline)
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	rows := historicalMondays("X", 100, 110, 90, 105, 95)
	rows = append(rows, recentShift("X", "r1", 30, 9, 70))

	first, err := Analyze(rows, testNow, DefaultParams())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	second, err := Analyze(rows, testNow, DefaultParams())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical input must produce identical output")
	}
}
