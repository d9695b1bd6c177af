package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ShiftRow is one POS shift held in the warehouse master table. Payload
// keeps the raw API object for later reprocessing.
type ShiftRow struct {
	ID         string
	StoreID    string
	OpenedAt   time.Time
	ClosedAt   *time.Time
	TotalSales decimal.Decimal
	Payload    json.RawMessage
	LoadedAt   time.Time
}

// ReceiptRow is one POS receipt with its raw line items.
type ReceiptRow struct {
	ReceiptNumber string
	StoreID       string
	CreatedAt     time.Time
	LineItems     json.RawMessage
	LoadedAt      time.Time
}

// PairCountRow aggregates the quantities of two competing products sold
// within one shift's open window.
type PairCountRow struct {
	ShiftID  string
	StoreID  string
	OpenedAt time.Time
	CountA   decimal.Decimal
	CountB   decimal.Decimal
}

// ReportRow captures one assessed shift from a detection run for
// auditing and reporting.
type ReportRow struct {
	ID             int64
	RunAt          time.Time
	StoreID        string
	ShiftID        string
	OpenedAt       time.Time
	Slot           string
	TotalSales     decimal.Decimal
	BaselineMean   decimal.Decimal
	BaselineStdDev decimal.Decimal
	SalesDiff      decimal.Decimal
	PerformancePct decimal.Decimal
	Statistical    bool
	HardRule       bool
	InAlertRun     bool
	Reasons        []string
	CreatedAt      time.Time
}
