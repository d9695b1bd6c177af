package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/batisback/loyverse-daily-sync/internal/storage"
)

// Export renders assessed shifts as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxRows = a.Config.ResolveMaxRows(opts.MaxRows)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	rows, err := store.ListRecentReports(ctx, opts.MaxRows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Msg("no report rows found for export")
		return nil
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].OpenedAt.Before(rows[j].OpenedAt)
	})

	downsampled := downsampleRows(rows, opts.MaxRows)
	a.Logger.Info().Int("total", len(rows)).Int("exported", len(downsampled)).Msg("exporting report rows")

	if opts.CSVPath != "" {
		if err := writeReportCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeReportPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRows(rows []storage.ReportRow, max int) []storage.ReportRow {
	if max <= 0 || len(rows) <= max {
		return rows
	}

	result := make([]storage.ReportRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeReportCSV(path string, rows []storage.ReportRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"opened_at", "store_id", "shift_id", "slot", "total_sales", "baseline_mean", "baseline_std_dev", "sales_diff", "performance_pct", "statistical", "hard_rule", "in_alert_run", "reasons"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.OpenedAt.UTC().Format(time.RFC3339),
			row.StoreID,
			row.ShiftID,
			row.Slot,
			row.TotalSales.String(),
			row.BaselineMean.String(),
			row.BaselineStdDev.String(),
			row.SalesDiff.String(),
			row.PerformancePct.String(),
			strconv.FormatBool(row.Statistical),
			strconv.FormatBool(row.HardRule),
			strconv.FormatBool(row.InAlertRun),
			strings.Join(row.Reasons, "; "),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeReportPNG(path string, rows []storage.ReportRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(rows))
	sales := make([]float64, len(rows))
	baseline := make([]float64, len(rows))
	performance := make([]float64, len(rows))

	for i, row := range rows {
		x[i] = row.OpenedAt
		sales[i] = row.TotalSales.InexactFloat64()
		baseline[i] = row.BaselineMean.InexactFloat64()
		performance[i] = row.PerformancePct.InexactFloat64()
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Shift sales",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Performance (%)",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Sales",
				XValues: x,
				YValues: sales,
			},
			chart.TimeSeries{
				Name:    "Baseline mean",
				XValues: x,
				YValues: baseline,
			},
			chart.TimeSeries{
				Name:    "Performance %",
				XValues: x,
				YValues: performance,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
