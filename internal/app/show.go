package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent assessed shifts from the report table.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show reports")
	}
	if closeStore != nil {
		defer closeStore()
	}

	rows, err := store.ListRecentReports(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no report rows found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Opened (UTC)\tStore\tSlot\tSales\tBaseline\tDiff\tPerf%\tRun\tReasons")

	for _, row := range rows {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.OpenedAt.UTC().Format(time.RFC3339),
			row.StoreID,
			row.Slot,
			formatDecimal(row.TotalSales, 2),
			formatDecimal(row.BaselineMean, 2),
			formatDecimal(row.SalesDiff, 2),
			formatDecimal(row.PerformancePct, 1),
			runLabel(row.InAlertRun),
			sanitizeInline(strings.Join(row.Reasons, "; ")),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
