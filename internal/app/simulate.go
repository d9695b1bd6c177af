package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/batisback/loyverse-daily-sync/internal/alerting"
	"github.com/batisback/loyverse-daily-sync/internal/engine"
)

// SimulateAlert 通过伪造的连续低迷班次触发一次告警流程。
func (a *App) SimulateAlert(ctx context.Context, storeName string, runLength int, sales, baseline decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	storeID := storeName
	if id, ok := a.Config.Stores[storeName]; ok {
		storeID = id
	}

	params := a.Config.Detection.Params()
	now := time.Now().UTC()

	shifts := make([]alerting.FlaggedShift, 0, runLength)
	for i := runLength - 1; i >= 0; i-- {
		opened := now.AddDate(0, 0, -i)
		cohort, ok := params.Classify(opened)
		if !ok {
			// Force the opening hour into a cohort window.
			opened = time.Date(opened.Year(), opened.Month(), opened.Day(), 1, 0, 0, 0, time.UTC)
			cohort, _ = params.Classify(opened)
		}

		diff := sales.Sub(baseline)
		pct := decimal.Zero
		if !baseline.IsZero() {
			pct = diff.Div(baseline).Mul(decimal.NewFromInt(100))
		}

		shifts = append(shifts, alerting.FlaggedShift{
			ShiftID:        fmt.Sprintf("simulated-%d", runLength-i),
			OpenedAt:       opened,
			Slot:           cohort.String(),
			TotalSales:     sales,
			BaselineMean:   baseline,
			SalesDiff:      diff,
			PerformancePct: pct,
			Reasons:        []string{engine.ReasonHardRule},
		})
	}

	note := alerting.Notification{
		StoreName:     storeName,
		StoreID:       storeID,
		GeneratedAt:   now,
		Shifts:        shifts,
		Channels:      a.Config.Alerting.Channels,
		AdditionalMsg: "simulated alert, no real data behind it",
	}

	return notifier.Notify(ctx, note)
}
