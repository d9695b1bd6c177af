package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

// stagingDateLayout names per-day staging tables, e.g. shifts_staging_2025_06_30.
const stagingDateLayout = "2006_01_02"

const (
	createShiftStagingSQL = `CREATE TABLE IF NOT EXISTS %s (
        id          TEXT PRIMARY KEY,
        store_id    TEXT NOT NULL,
        opened_at   TIMESTAMPTZ,
        closed_at   TIMESTAMPTZ,
        total_sales NUMERIC NOT NULL DEFAULT 0,
        payload     JSONB,
        loaded_at   TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertShiftStagingSQL = `INSERT INTO %s (
        id, store_id, opened_at, closed_at, total_sales, payload
    ) VALUES ($1,$2,$3,$4,$5,$6)
    ON CONFLICT (id) DO UPDATE
    SET store_id    = EXCLUDED.store_id,
        opened_at   = EXCLUDED.opened_at,
        closed_at   = EXCLUDED.closed_at,
        total_sales = EXCLUDED.total_sales,
        payload     = EXCLUDED.payload;`

	mergeShiftStagingSQL = `INSERT INTO shifts (
        id, store_id, opened_at, closed_at, total_sales, payload
    )
    SELECT id, store_id, opened_at, closed_at, total_sales, payload
    FROM %s
    ON CONFLICT (id) DO NOTHING;`

	createReceiptStagingSQL = `CREATE TABLE IF NOT EXISTS %s (
        receipt_number TEXT PRIMARY KEY,
        store_id       TEXT NOT NULL,
        created_at_api TIMESTAMPTZ,
        line_items     JSONB,
        loaded_at      TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertReceiptStagingSQL = `INSERT INTO %s (
        receipt_number, store_id, created_at_api, line_items
    ) VALUES ($1,$2,$3,$4)
    ON CONFLICT (receipt_number) DO UPDATE
    SET store_id       = EXCLUDED.store_id,
        created_at_api = EXCLUDED.created_at_api,
        line_items     = EXCLUDED.line_items;`

	mergeReceiptStagingSQL = `INSERT INTO receipts (
        receipt_number, store_id, created_at_api, line_items
    )
    SELECT receipt_number, store_id, created_at_api, line_items
    FROM %s
    ON CONFLICT (receipt_number) DO NOTHING;`

	listShiftsSinceSQL = `SELECT
        id, store_id, opened_at, closed_at, total_sales, loaded_at
    FROM shifts
    WHERE store_id = ANY($1)
      AND opened_at >= $2
    ORDER BY store_id, opened_at, id;`

	listPairCountsSQL = `SELECT
        s.id,
        s.store_id,
        s.opened_at,
        COALESCE(SUM(CASE WHEN li.item_name = $3 THEN li.quantity ELSE 0 END), 0) AS count_a,
        COALESCE(SUM(CASE WHEN li.item_name = $4 THEN li.quantity ELSE 0 END), 0) AS count_b
    FROM shifts s
    LEFT JOIN receipts r
      ON r.store_id = s.store_id
     AND r.created_at_api >= s.opened_at
     AND r.created_at_api < COALESCE(s.closed_at, s.opened_at + INTERVAL '12 hours')
    LEFT JOIN LATERAL (
        SELECT item->>'item_name' AS item_name,
               COALESCE((item->>'quantity')::NUMERIC, 0) AS quantity
        FROM jsonb_array_elements(r.line_items) AS item
    ) li ON li.item_name IN ($3, $4)
    WHERE s.store_id = ANY($1)
      AND s.opened_at >= $2
    GROUP BY s.id, s.store_id, s.opened_at
    ORDER BY s.store_id, s.opened_at, s.id;`

	countShiftsSQL = `SELECT COUNT(*) FROM shifts;`

	upsertReportRowSQL = `INSERT INTO anomaly_reports (
        run_at,
        store_id,
        shift_id,
        opened_at,
        slot,
        total_sales,
        baseline_mean,
        baseline_std_dev,
        sales_diff,
        performance_pct,
        statistical,
        hard_rule,
        in_alert_run,
        reasons
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    )
    ON CONFLICT (shift_id) DO UPDATE
    SET run_at           = EXCLUDED.run_at,
        slot             = EXCLUDED.slot,
        total_sales      = EXCLUDED.total_sales,
        baseline_mean    = EXCLUDED.baseline_mean,
        baseline_std_dev = EXCLUDED.baseline_std_dev,
        sales_diff       = EXCLUDED.sales_diff,
        performance_pct  = EXCLUDED.performance_pct,
        statistical      = EXCLUDED.statistical,
        hard_rule        = EXCLUDED.hard_rule,
        in_alert_run     = EXCLUDED.in_alert_run,
        reasons          = EXCLUDED.reasons;`

	listRecentReportsSQL = `SELECT
        id,
        run_at,
        store_id,
        shift_id,
        opened_at,
        slot,
        total_sales,
        baseline_mean,
        baseline_std_dev,
        sales_diff,
        performance_pct,
        statistical,
        hard_rule,
        in_alert_run,
        reasons,
        created_at
    FROM anomaly_reports
    ORDER BY opened_at DESC
    LIMIT $1;`

	deleteReportsBeforeSQL = `DELETE FROM anomaly_reports WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ShiftStore defines warehouse operations for shifts and receipts.
type ShiftStore interface {
	StageShifts(ctx context.Context, day time.Time, rows []ShiftRow) error
	StageReceipts(ctx context.Context, day time.Time, rows []ReceiptRow) error
	MergeDay(ctx context.Context, day time.Time) (shifts int64, receipts int64, err error)
	ListShiftsSince(ctx context.Context, storeIDs []string, since time.Time) ([]ShiftRow, error)
	ListPairCounts(ctx context.Context, storeIDs []string, since time.Time, productA, productB string) ([]PairCountRow, error)
	CountShifts(ctx context.Context) (int64, error)
}

// ReportStore defines operations for detection run auditing.
type ReportStore interface {
	UpsertReportRows(ctx context.Context, rows []ReportRow) error
	ListRecentReports(ctx context.Context, limit int) ([]ReportRow, error)
	DeleteReportsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates warehouse access for shifts, receipts, and reports.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort; the session lock dies with the connection anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

func shiftStagingTable(day time.Time) string {
	return "shifts_staging_" + day.Format(stagingDateLayout)
}

func receiptStagingTable(day time.Time) string {
	return "receipts_staging_" + day.Format(stagingDateLayout)
}

// StageShifts loads one day's API pull into its staging table,
// overwriting rows from earlier pulls of the same day.
func (s *Store) StageShifts(ctx context.Context, day time.Time, rows []ShiftRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	table := shiftStagingTable(day)
	if _, err := pool.Exec(ctx, fmt.Sprintf(createShiftStagingSQL, table)); err != nil {
		return fmt.Errorf("create shift staging table: %w", err)
	}

	upsert := fmt.Sprintf(upsertShiftStagingSQL, table)
	for _, row := range rows {
		var closed interface{}
		if row.ClosedAt != nil {
			closed = *row.ClosedAt
		}
		var payload interface{}
		if len(row.Payload) > 0 {
			payload = []byte(row.Payload)
		}
		if _, err := pool.Exec(ctx, upsert,
			row.ID,
			row.StoreID,
			row.OpenedAt,
			closed,
			row.TotalSales.String(),
			payload,
		); err != nil {
			return fmt.Errorf("stage shift %s: %w", row.ID, err)
		}
	}
	return nil
}

// StageReceipts loads one day's receipts into its staging table.
func (s *Store) StageReceipts(ctx context.Context, day time.Time, rows []ReceiptRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	table := receiptStagingTable(day)
	if _, err := pool.Exec(ctx, fmt.Sprintf(createReceiptStagingSQL, table)); err != nil {
		return fmt.Errorf("create receipt staging table: %w", err)
	}

	upsert := fmt.Sprintf(upsertReceiptStagingSQL, table)
	for _, row := range rows {
		var lineItems interface{}
		if len(row.LineItems) > 0 {
			lineItems = []byte(row.LineItems)
		}
		if _, err := pool.Exec(ctx, upsert,
			row.ReceiptNumber,
			row.StoreID,
			row.CreatedAt,
			lineItems,
		); err != nil {
			return fmt.Errorf("stage receipt %s: %w", row.ReceiptNumber, err)
		}
	}
	return nil
}

// MergeDay folds one day's staging tables into the master tables.
// Already-merged rows are left untouched, so re-running a day is
// idempotent.
func (s *Store) MergeDay(ctx context.Context, day time.Time) (int64, int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, 0, err
	}

	shiftTag, err := pool.Exec(ctx, fmt.Sprintf(mergeShiftStagingSQL, shiftStagingTable(day)))
	if err != nil {
		return 0, 0, fmt.Errorf("merge shifts staging: %w", err)
	}

	receiptTag, err := pool.Exec(ctx, fmt.Sprintf(mergeReceiptStagingSQL, receiptStagingTable(day)))
	if err != nil {
		return shiftTag.RowsAffected(), 0, fmt.Errorf("merge receipts staging: %w", err)
	}

	return shiftTag.RowsAffected(), receiptTag.RowsAffected(), nil
}

// ListShiftsSince lists master shifts for the store set from a cutoff,
// ordered by store and opening time.
func (s *Store) ListShiftsSince(ctx context.Context, storeIDs []string, since time.Time) ([]ShiftRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listShiftsSinceSQL, storeIDs, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list shifts since: %w", queryErr)
	}
	defer rows.Close()

	shifts := make([]ShiftRow, 0)
	for rows.Next() {
		shift, scanErr := scanShiftRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		shifts = append(shifts, shift)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return shifts, nil
}

// ListPairCounts aggregates the two configured product quantities per
// shift by unnesting receipt line items inside the shift's open window.
func (s *Store) ListPairCounts(ctx context.Context, storeIDs []string, since time.Time, productA, productB string) ([]PairCountRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPairCountsSQL, storeIDs, since, productA, productB)
	if queryErr != nil {
		return nil, fmt.Errorf("list pair counts: %w", queryErr)
	}
	defer rows.Close()

	counts := make([]PairCountRow, 0)
	for rows.Next() {
		var (
			row       PairCountRow
			countAStr string
			countBStr string
		)
		if err := rows.Scan(&row.ShiftID, &row.StoreID, &row.OpenedAt, &countAStr, &countBStr); err != nil {
			return nil, err
		}
		var convErr error
		row.CountA, convErr = decimal.NewFromString(countAStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse count_a: %w", convErr)
		}
		row.CountB, convErr = decimal.NewFromString(countBStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse count_b: %w", convErr)
		}
		counts = append(counts, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

// CountShifts counts master shift rows.
func (s *Store) CountShifts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countShiftsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count shifts: %w", scanErr)
	}
	return count, nil
}

// UpsertReportRows persists one detection run's assessed shifts.
func (s *Store) UpsertReportRows(ctx context.Context, reportRows []ReportRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, row := range reportRows {
		if _, execErr := pool.Exec(ctx, upsertReportRowSQL,
			row.RunAt,
			row.StoreID,
			row.ShiftID,
			row.OpenedAt,
			row.Slot,
			row.TotalSales.String(),
			row.BaselineMean.String(),
			row.BaselineStdDev.String(),
			row.SalesDiff.String(),
			row.PerformancePct.String(),
			row.Statistical,
			row.HardRule,
			row.InAlertRun,
			row.Reasons,
		); execErr != nil {
			return fmt.Errorf("upsert report row for shift %s: %w", row.ShiftID, execErr)
		}
	}
	return nil
}

// ListRecentReports lists the most recent report rows ordered by shift
// opening time descending.
func (s *Store) ListRecentReports(ctx context.Context, limit int) ([]ReportRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentReportsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent reports: %w", queryErr)
	}
	defer rows.Close()

	reports := make([]ReportRow, 0, limit)
	for rows.Next() {
		report, scanErr := scanReportRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		reports = append(reports, report)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return reports, nil
}

// DeleteReportsBefore deletes historical report rows.
func (s *Store) DeleteReportsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteReportsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete reports before: %w", execErr)
	}
	return nil
}

func scanShiftRow(rows pgx.Rows) (ShiftRow, error) {
	var (
		shift    ShiftRow
		closed   *time.Time
		salesStr string
	)

	if err := rows.Scan(
		&shift.ID,
		&shift.StoreID,
		&shift.OpenedAt,
		&closed,
		&salesStr,
		&shift.LoadedAt,
	); err != nil {
		return ShiftRow{}, err
	}

	sales, err := decimal.NewFromString(salesStr)
	if err != nil {
		return ShiftRow{}, fmt.Errorf("parse total_sales: %w", err)
	}
	shift.TotalSales = sales
	shift.ClosedAt = closed

	return shift, nil
}

func scanReportRow(rows pgx.Rows) (ReportRow, error) {
	var (
		report  ReportRow
		numeric [5]string
	)

	if err := rows.Scan(
		&report.ID,
		&report.RunAt,
		&report.StoreID,
		&report.ShiftID,
		&report.OpenedAt,
		&report.Slot,
		&numeric[0],
		&numeric[1],
		&numeric[2],
		&numeric[3],
		&numeric[4],
		&report.Statistical,
		&report.HardRule,
		&report.InAlertRun,
		&report.Reasons,
		&report.CreatedAt,
	); err != nil {
		return ReportRow{}, err
	}

	targets := []*decimal.Decimal{
		&report.TotalSales,
		&report.BaselineMean,
		&report.BaselineStdDev,
		&report.SalesDiff,
		&report.PerformancePct,
	}
	for i, target := range targets {
		value, err := decimal.NewFromString(numeric[i])
		if err != nil {
			return ReportRow{}, fmt.Errorf("parse report numeric column %d: %w", i, err)
		}
		*target = value
	}

	return report, nil
}
