package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/batisback/loyverse-daily-sync/internal/engine"
	"github.com/batisback/loyverse-daily-sync/internal/service"
)

// Analyze 对仓库中已有的数据执行一次检测，并打印评估结果。
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot analyze")
	}
	if closeStore != nil {
		defer closeStore()
	}

	notifier := a.newNotifier()

	svc := service.New(a.Config, nil, nil, nil, store, store, notifier, a.Logger)

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	report, ratios, err := svc.Detect(ctx, now)
	if err != nil {
		return err
	}

	printReport(report)
	printRatios(ratios, a.Config.Detection.ProductA, a.Config.Detection.ProductB)

	if opts.Persist {
		if err := store.UpsertReportRows(ctx, service.BuildReportRows(report)); err != nil {
			return fmt.Errorf("persist report rows: %w", err)
		}
		a.Logger.Info().Msg("report rows persisted")
	}

	if opts.Notify {
		if notifier == nil {
			return errors.New("未配置任何告警通道")
		}
		svc.NotifyReport(ctx, report)
	}

	return nil
}

func printReport(report engine.Report) {
	if len(report.Stores) == 0 {
		fmt.Fprintln(os.Stdout, "no shifts in analysis window")
		return
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Opened (UTC)\tStore\tSlot\tSales\tBaseline\tDiff\tPerf%\tFlags\tRun")

	for _, store := range report.Stores {
		for _, shift := range store.Shifts {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%.2f\t%.2f\t%.1f\t%s\t%s\n",
				shift.Record.OpenedAt.UTC().Format(time.RFC3339),
				store.StoreID,
				shift.Cohort.String(),
				formatDecimal(shift.Record.TotalSales, 2),
				shift.Baseline.Mean,
				shift.SalesDiff,
				shift.PerformancePct,
				flagLabel(shift),
				runLabel(shift.InAlertRun),
			)
		}
		if store.Weekly.HasBaseline {
			fmt.Fprintf(writer, "# %s weekly: %.2f vs %.2f (%+.1f%%)\n",
				store.StoreID, store.Weekly.RecentTotal, store.Weekly.AvgWeeklyBaseline, store.Weekly.PctChange)
		}
	}

	writer.Flush()

	if report.Rejected > 0 {
		fmt.Fprintf(os.Stdout, "rejected rows: %d\n", report.Rejected)
	}
}

func printRatios(ratios []engine.RatioAssessment, productA, productB string) {
	var anomalous []engine.RatioAssessment
	for _, assessment := range ratios {
		if assessment.Verdict.Anomalous() {
			anomalous = append(anomalous, assessment)
		}
	}
	if len(anomalous) == 0 {
		return
	}

	fmt.Fprintf(os.Stdout, "\nproduct ratio anomalies (%s vs %s):\n", productA, productB)
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Opened (UTC)\tStore\tSlot\tRatio\tReasons")
	for _, assessment := range anomalous {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%.2f\t%s\n",
			assessment.Row.OpenedAt.UTC().Format(time.RFC3339),
			assessment.Row.StoreID,
			assessment.Cohort.String(),
			assessment.Verdict.Ratio,
			strings.Join(assessment.Verdict.Reasons, "; "),
		)
	}
	writer.Flush()
}

func flagLabel(shift engine.ShiftAssessment) string {
	switch {
	case shift.Verdict.Statistical && shift.Verdict.HardRule:
		return "stat+hard"
	case shift.Verdict.Statistical:
		return "stat"
	case shift.Verdict.HardRule:
		return "hard"
	default:
		return "-"
	}
}

func runLabel(inRun bool) string {
	if inRun {
		return "RUN"
	}
	return "-"
}
