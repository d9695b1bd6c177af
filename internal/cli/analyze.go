package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/batisback/loyverse-daily-sync/internal/app"
)

var (
	analyzeDate    string
	analyzePersist bool
	analyzeNotify  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run anomaly detection over the warehouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.AnalyzeOptions{
			Persist: analyzePersist,
			Notify:  analyzeNotify,
		}

		if analyzeDate != "" {
			now, err := time.Parse("2006-01-02", analyzeDate)
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			opts.Now = now
		}

		return getApp().Analyze(cmd.Context(), opts)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDate, "date", "", "Reference day for the analysis window (YYYY-MM-DD, defaults to now)")
	analyzeCmd.Flags().BoolVar(&analyzePersist, "persist", false, "Persist assessed shifts to the report table")
	analyzeCmd.Flags().BoolVar(&analyzeNotify, "notify", false, "Dispatch alerts for detected runs")
}
