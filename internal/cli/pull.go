package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/batisback/loyverse-daily-sync/internal/app"
)

var pullDate string

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull one day of POS data into the warehouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.PullOptions{}

		if pullDate != "" {
			day, err := time.Parse("2006-01-02", pullDate)
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			opts.Day = day
		}

		return getApp().Pull(cmd.Context(), opts)
	},
}

func init() {
	pullCmd.Flags().StringVar(&pullDate, "date", "", "Day to pull (YYYY-MM-DD, defaults to today)")
}
