package fetcher

import (
	"context"
	"time"
)

// Window bounds one API pull in UTC.
type Window struct {
	From time.Time
	To   time.Time
}

// DayWindow covers whole local days (UTC+offset) from daysBack days ago
// through the end of today, converted to UTC for the API.
func DayWindow(now time.Time, daysBack int, offsetHours int) Window {
	local := now.In(time.FixedZone("local", offsetHours*3600))
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location()).AddDate(0, 0, -daysBack)
	end := time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999_999_000, local.Location())
	return Window{From: start.UTC(), To: end.UTC()}
}

// ShiftSource retrieves POS shifts created within a window.
type ShiftSource interface {
	FetchShifts(ctx context.Context, window Window) ([]Shift, error)
}

// ReceiptSource retrieves POS receipts created within a window.
type ReceiptSource interface {
	FetchReceipts(ctx context.Context, window Window) ([]Receipt, error)
}
