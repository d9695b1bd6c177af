package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/batisback/loyverse-daily-sync/internal/alerting"
	"github.com/batisback/loyverse-daily-sync/internal/config"
	"github.com/batisback/loyverse-daily-sync/internal/engine"
	"github.com/batisback/loyverse-daily-sync/internal/fetcher"
	"github.com/batisback/loyverse-daily-sync/internal/scheduler"
	"github.com/batisback/loyverse-daily-sync/internal/storage"
)

// Service orchestrates ingestion, detection, persistence, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	shifts    fetcher.ShiftSource
	receipts  fetcher.ReceiptSource
	store     storage.ShiftStore
	reports   storage.ReportStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	params   engine.Params
	stores   map[string]string
	pullDays int
	productA string
	productB string
	channels []string
	alertsOn bool
	locker   storage.AdvisoryLocker
	lockKey  int64
}

// New constructs the sync service.
func New(cfg *config.Config, sched *scheduler.Scheduler, shifts fetcher.ShiftSource, receipts fetcher.ReceiptSource, store storage.ShiftStore, reports storage.ReportStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: sched,
		shifts:    shifts,
		receipts:  receipts,
		store:     store,
		reports:   reports,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		params:    cfg.Detection.Params(),
		stores:    cfg.Stores,
		pullDays:  cfg.Loyverse.PullDays,
		productA:  cfg.Detection.ProductA,
		productB:  cfg.Detection.ProductB,
		channels:  cfg.Alerting.Channels,
		alertsOn:  cfg.Alerting.Enabled,
		locker:    locker,
		lockKey:   cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the aligned daily sync loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessDay)
}

// ProcessDay 执行单日的拉取、检测与告警流程。
func (s *Service) ProcessDay(ctx context.Context, day time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("day", day).Msg("skip day because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeDay(ctx, day)
}

func (s *Service) executeDay(ctx context.Context, day time.Time) error {
	if err := s.Ingest(ctx, day); err != nil {
		return err
	}

	report, ratios, err := s.Detect(ctx, day)
	if err != nil {
		return err
	}

	if s.reports != nil {
		if err := s.reports.UpsertReportRows(ctx, BuildReportRows(report)); err != nil {
			s.logger.Error().Err(err).Time("day", day).Msg("failed to persist report rows")
		}
		// Report rows older than the rolling window are dead weight.
		retention := day.AddDate(0, 0, -s.params.BaselineDays)
		if err := s.reports.DeleteReportsBefore(ctx, retention); err != nil {
			s.logger.Error().Err(err).Time("older_than", retention).Msg("failed to prune report rows")
		}
	}

	for _, assessment := range ratios {
		if assessment.Verdict.Anomalous() {
			s.logger.Warn().
				Str("store", s.storeName(assessment.Row.StoreID)).
				Str("shift", assessment.Row.ShiftID).
				Str("slot", assessment.Cohort.String()).
				Float64("ratio", assessment.Verdict.Ratio).
				Strs("reasons", assessment.Verdict.Reasons).
				Msg("product ratio anomaly")
		}
	}

	s.notifyRuns(ctx, report)
	return nil
}

// Ingest pulls the day's API window, stages it, and merges it into the
// master tables. A nil fetcher (detection-only runs) is a no-op.
func (s *Service) Ingest(ctx context.Context, day time.Time) error {
	if s.shifts == nil || s.store == nil {
		return nil
	}

	window := fetcher.DayWindow(day, s.pullDays, s.params.UTCOffsetHours)

	apiShifts, err := s.shifts.FetchShifts(ctx, window)
	if err != nil {
		return fmt.Errorf("fetch shifts: %w", err)
	}

	shiftRows := make([]storage.ShiftRow, 0, len(apiShifts))
	for _, shift := range apiShifts {
		shiftRows = append(shiftRows, storage.ShiftRow{
			ID:         shift.ID,
			StoreID:    shift.StoreID,
			OpenedAt:   shift.OpenedAt,
			ClosedAt:   shift.ClosedAt,
			TotalSales: shift.TotalSales(),
			Payload:    shift.Raw,
		})
	}
	if err := s.store.StageShifts(ctx, day, shiftRows); err != nil {
		return fmt.Errorf("stage shifts: %w", err)
	}

	var receiptRows []storage.ReceiptRow
	if s.receipts != nil {
		apiReceipts, err := s.receipts.FetchReceipts(ctx, window)
		if err != nil {
			return fmt.Errorf("fetch receipts: %w", err)
		}
		receiptRows = make([]storage.ReceiptRow, 0, len(apiReceipts))
		for _, receipt := range apiReceipts {
			raw, marshalErr := receiptLineItems(receipt)
			if marshalErr != nil {
				return marshalErr
			}
			receiptRows = append(receiptRows, storage.ReceiptRow{
				ReceiptNumber: receipt.ReceiptNumber,
				StoreID:       receipt.StoreID,
				CreatedAt:     receipt.CreatedAt,
				LineItems:     raw,
			})
		}
	}
	if err := s.store.StageReceipts(ctx, day, receiptRows); err != nil {
		return fmt.Errorf("stage receipts: %w", err)
	}

	mergedShifts, mergedReceipts, err := s.store.MergeDay(ctx, day)
	if err != nil {
		return fmt.Errorf("merge staging: %w", err)
	}

	s.logger.Info().Time("day", day).
		Int("staged_shifts", len(shiftRows)).
		Int("staged_receipts", len(receiptRows)).
		Int64("merged_shifts", mergedShifts).
		Int64("merged_receipts", mergedReceipts).
		Msg("ingestion complete")
	return nil
}

// Detect loads the rolling window from the warehouse and runs the
// anomaly engine, including the product-pair variant when two products
// are configured.
func (s *Service) Detect(ctx context.Context, now time.Time) (engine.Report, []engine.RatioAssessment, error) {
	if s.store == nil {
		return engine.Report{}, nil, fmt.Errorf("warehouse not configured")
	}

	cutoff := now.AddDate(0, 0, -s.params.BaselineDays)
	rows, err := s.store.ListShiftsSince(ctx, s.storeIDs(), cutoff)
	if err != nil {
		return engine.Report{}, nil, fmt.Errorf("load shifts: %w", err)
	}

	records := make([]engine.ShiftRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, engine.ShiftRecord{
			ID:         row.ID,
			StoreID:    row.StoreID,
			OpenedAt:   row.OpenedAt,
			ClosedAt:   row.ClosedAt,
			TotalSales: row.TotalSales,
		})
	}

	report, err := engine.Analyze(records, now, s.params)
	if err != nil {
		return engine.Report{}, nil, err
	}
	if report.Rejected > 0 {
		s.logger.Warn().Int("rejected", report.Rejected).Msg("dropped shifts without opening time")
	}

	var ratios []engine.RatioAssessment
	if s.productA != "" && s.productB != "" {
		pairRows, err := s.store.ListPairCounts(ctx, s.storeIDs(), cutoff, s.productA, s.productB)
		if err != nil {
			return engine.Report{}, nil, fmt.Errorf("load pair counts: %w", err)
		}
		pairs := make([]engine.ProductPairRow, 0, len(pairRows))
		for _, row := range pairRows {
			pairs = append(pairs, engine.ProductPairRow{
				ShiftID:  row.ShiftID,
				StoreID:  row.StoreID,
				OpenedAt: row.OpenedAt,
				CountA:   row.CountA.InexactFloat64(),
				CountB:   row.CountB.InexactFloat64(),
			})
		}
		ratios = engine.AnalyzeRatio(pairs, now, s.params)
	}

	return report, ratios, nil
}

// NotifyReport dispatches run alerts for an already computed report.
// One-shot commands use it to reuse the run notification path.
func (s *Service) NotifyReport(ctx context.Context, report engine.Report) {
	s.notifyRuns(ctx, report)
}

func (s *Service) notifyRuns(ctx context.Context, report engine.Report) {
	if !s.alertsOn || s.notifier == nil {
		return
	}

	for _, store := range report.Stores {
		var flagged []alerting.FlaggedShift
		for _, shift := range store.Shifts {
			if !shift.InAlertRun {
				continue
			}
			flagged = append(flagged, alerting.FlaggedShift{
				ShiftID:        shift.Record.ID,
				OpenedAt:       shift.Record.OpenedAt,
				Slot:           shift.Cohort.String(),
				TotalSales:     shift.Record.TotalSales,
				BaselineMean:   decimal.NewFromFloat(shift.Baseline.Mean),
				SalesDiff:      decimal.NewFromFloat(shift.SalesDiff),
				PerformancePct: decimal.NewFromFloat(shift.PerformancePct),
				Reasons:        shift.Verdict.Reasons,
			})
		}
		if len(flagged) == 0 {
			continue
		}

		note := alerting.Notification{
			StoreName:   s.storeName(store.StoreID),
			StoreID:     store.StoreID,
			GeneratedAt: report.GeneratedAt,
			Shifts:      flagged,
			Channels:    s.channels,
		}
		if store.Weekly.HasBaseline {
			note.WeeklyPct = decimal.NewFromFloat(store.Weekly.PctChange)
			note.HasWeeklyPct = true
		}

		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Str("store", note.StoreName).Msg("failed to dispatch alert")
		}
	}
}

// BuildReportRows flattens an engine report into warehouse report rows.
func BuildReportRows(report engine.Report) []storage.ReportRow {
	var rows []storage.ReportRow
	for _, store := range report.Stores {
		for _, shift := range store.Shifts {
			rows = append(rows, storage.ReportRow{
				RunAt:          report.GeneratedAt,
				StoreID:        store.StoreID,
				ShiftID:        shift.Record.ID,
				OpenedAt:       shift.Record.OpenedAt,
				Slot:           shift.Cohort.String(),
				TotalSales:     shift.Record.TotalSales,
				BaselineMean:   decimal.NewFromFloat(shift.Baseline.Mean),
				BaselineStdDev: decimal.NewFromFloat(shift.Baseline.StdDev),
				SalesDiff:      decimal.NewFromFloat(shift.SalesDiff),
				PerformancePct: decimal.NewFromFloat(shift.PerformancePct),
				Statistical:    shift.Verdict.Statistical,
				HardRule:       shift.Verdict.HardRule,
				InAlertRun:     shift.InAlertRun,
				Reasons:        shift.Verdict.Reasons,
			})
		}
	}
	return rows
}

func (s *Service) storeIDs() []string {
	ids := make([]string, 0, len(s.stores))
	for _, id := range s.stores {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) storeName(id string) string {
	for name, storeID := range s.stores {
		if storeID == id {
			return name
		}
	}
	return id
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func receiptLineItems(receipt fetcher.Receipt) ([]byte, error) {
	raw, err := json.Marshal(receipt.LineItems)
	if err != nil {
		return nil, fmt.Errorf("marshal line items for receipt %s: %w", receipt.ReceiptNumber, err)
	}
	return raw, nil
}
