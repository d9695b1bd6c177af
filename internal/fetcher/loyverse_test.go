package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testWindow() Window {
	return Window{
		From: time.Date(2025, 6, 28, 16, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 6, 30, 15, 59, 59, 0, time.UTC),
	}
}

func TestFetchShiftsMissingToken(t *testing.T) {
	l := NewLoyverse(LoyverseOptions{}, noopLogger())
	if _, err := l.FetchShifts(context.Background(), testWindow()); err == nil {
		t.Fatal("缺少 token 时应返回错误")
	}
}

func TestFetchShiftsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"errorType": "unauthorized"})
	}))
	defer srv.Close()

	l := NewLoyverse(LoyverseOptions{BaseURL: srv.URL, Token: "bad"}, noopLogger())
	if _, err := l.FetchShifts(context.Background(), testWindow()); err == nil {
		t.Fatal("HTTP 401 应返回错误")
	}
}

func TestFetchShiftsPaginates(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Fatalf("Authorization 头不正确: %q", got)
		}
		if r.URL.Query().Get("limit") != "2" {
			t.Fatalf("limit 参数不正确: %q", r.URL.Query().Get("limit"))
		}

		pages++
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("cursor") {
		case "":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"shifts": []map[string]any{
					{"id": "s1", "store_id": "a", "opened_at": "2025-06-29T01:00:00Z", "payments": []map[string]any{{"money_amount": 100.5}, {"money_amount": 49.5}}},
					{"id": "s2", "store_id": "a", "opened_at": "2025-06-29T09:00:00Z"},
				},
				"cursor": "next",
			})
		case "next":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"shifts": []map[string]any{
					{"id": "s3", "store_id": "b", "opened_at": "2025-06-30T01:00:00Z"},
				},
			})
		default:
			t.Fatalf("未知 cursor: %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer srv.Close()

	l := NewLoyverse(LoyverseOptions{BaseURL: srv.URL, Token: "token", PageLimit: 2}, noopLogger())
	shifts, err := l.FetchShifts(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("分页拉取不应报错: %v", err)
	}

	if pages != 2 {
		t.Fatalf("期望 2 页, 实际 %d", pages)
	}
	if len(shifts) != 3 {
		t.Fatalf("期望 3 条班次, 实际 %d", len(shifts))
	}
	if shifts[0].TotalSales().Cmp(decimal.NewFromInt(150)) != 0 {
		t.Fatalf("payments 求和不正确: %s", shifts[0].TotalSales())
	}
	if shifts[1].TotalSales().Sign() != 0 {
		t.Fatal("无 payments 的班次合计应为 0")
	}
	if len(shifts[0].Raw) == 0 {
		t.Fatal("应保留原始 API 对象")
	}
}

func TestFetchReceipts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"receipts": []map[string]any{
				{
					"receipt_number": "1-1001",
					"store_id":       "a",
					"created_at":     "2025-06-29T02:15:00Z",
					"line_items":     []map[string]any{{"item_name": "Americano", "quantity": 2}},
				},
			},
		})
	}))
	defer srv.Close()

	l := NewLoyverse(LoyverseOptions{BaseURL: srv.URL, Token: "token"}, noopLogger())
	receipts, err := l.FetchReceipts(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("FetchReceipts: %v", err)
	}
	if len(receipts) != 1 || receipts[0].ReceiptNumber != "1-1001" {
		t.Fatalf("unexpected receipts %+v", receipts)
	}
	if len(receipts[0].LineItems) != 1 || receipts[0].LineItems[0].ItemName != "Americano" {
		t.Fatalf("unexpected line items %+v", receipts[0].LineItems)
	}
}

func TestDayWindow(t *testing.T) {
	// 2025-06-30 12:00 UTC is 20:00 local in UTC+8.
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	window := DayWindow(now, 2, 8)

	// Local 2025-06-28 00:00 is 2025-06-27 16:00 UTC.
	if !window.From.Equal(time.Date(2025, 6, 27, 16, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window start %s", window.From)
	}
	// Local 2025-06-30 23:59:59 is 2025-06-30 15:59:59 UTC.
	if !window.To.Equal(time.Date(2025, 6, 30, 15, 59, 59, 999_999_000, time.UTC)) {
		t.Fatalf("unexpected window end %s", window.To)
	}
}
