package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	shiftsPath   = "/shifts"
	receiptsPath = "/receipts"

	apiTimeLayout = "2006-01-02T15:04:05Z"
)

// Payment is one payment line of a shift.
type Payment struct {
	MoneyAmount decimal.Decimal `json:"money_amount"`
}

// Shift is one POS shift as returned by the Loyverse API.
type Shift struct {
	ID       string     `json:"id"`
	StoreID  string     `json:"store_id"`
	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at"`
	Payments []Payment  `json:"payments"`

	// Raw keeps the original API object for warehouse staging.
	Raw json.RawMessage `json:"-"`
}

// TotalSales sums the shift's payment line amounts.
func (s Shift) TotalSales() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Payments {
		total = total.Add(p.MoneyAmount)
	}
	return total
}

// LineItem is one line of a receipt.
type LineItem struct {
	ItemName string          `json:"item_name"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Receipt is one POS receipt as returned by the Loyverse API.
type Receipt struct {
	ReceiptNumber string     `json:"receipt_number"`
	StoreID       string     `json:"store_id"`
	CreatedAt     time.Time  `json:"created_at"`
	LineItems     []LineItem `json:"line_items"`

	Raw json.RawMessage `json:"-"`
}

// LoyverseOptions parameterise the API client.
type LoyverseOptions struct {
	BaseURL   string
	Token     string
	PageLimit int
	Timeout   time.Duration
	UserAgent string
}

// Loyverse pulls shifts and receipts from the Loyverse REST API.
type Loyverse struct {
	opts    LoyverseOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewLoyverse constructs an API client.
func NewLoyverse(opts LoyverseOptions, logger zerolog.Logger) *Loyverse {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.loyverse.com/v1.0"
	}

	if opts.PageLimit <= 0 || opts.PageLimit > 250 {
		opts.PageLimit = 250
	}

	return &Loyverse{
		opts:    opts,
		logger:  logger.With().Str("component", "loyverse_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchShifts pages through /shifts for the window.
func (l *Loyverse) FetchShifts(ctx context.Context, window Window) ([]Shift, error) {
	items, err := l.paginate(ctx, shiftsPath, "shifts", window)
	if err != nil {
		return nil, err
	}

	shifts := make([]Shift, 0, len(items))
	for _, raw := range items {
		var shift Shift
		if err := json.Unmarshal(raw, &shift); err != nil {
			return nil, fmt.Errorf("decode shift: %w", err)
		}
		shift.Raw = raw
		shifts = append(shifts, shift)
	}
	return shifts, nil
}

// FetchReceipts pages through /receipts for the window.
func (l *Loyverse) FetchReceipts(ctx context.Context, window Window) ([]Receipt, error) {
	items, err := l.paginate(ctx, receiptsPath, "receipts", window)
	if err != nil {
		return nil, err
	}

	receipts := make([]Receipt, 0, len(items))
	for _, raw := range items {
		var receipt Receipt
		if err := json.Unmarshal(raw, &receipt); err != nil {
			return nil, fmt.Errorf("decode receipt: %w", err)
		}
		receipt.Raw = raw
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

// paginate follows the API cursor until it runs out, collecting the raw
// objects under keyName from every page.
func (l *Loyverse) paginate(ctx context.Context, path, keyName string, window Window) ([]json.RawMessage, error) {
	if l.opts.Token == "" {
		return nil, errors.New("loyverse token required")
	}

	var collected []json.RawMessage
	cursor := ""
	pages := 0

	for {
		page, nextCursor, err := l.fetchPage(ctx, path, keyName, window, cursor)
		if err != nil {
			return nil, err
		}
		collected = append(collected, page...)
		pages++

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	l.logger.Debug().Str("path", path).Int("pages", pages).Int("records", len(collected)).Msg("paginated pull complete")
	return collected, nil
}

func (l *Loyverse) fetchPage(ctx context.Context, path, keyName string, window Window, cursor string) ([]json.RawMessage, string, error) {
	endpoint := l.baseURL + path

	params := url.Values{}
	params.Set("created_at_min", window.From.UTC().Format(apiTimeLayout))
	params.Set("created_at_max", window.To.UTC().Format(apiTimeLayout))
	params.Set("limit", strconv.Itoa(l.opts.PageLimit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+l.opts.Token)
	req.Header.Set("Content-Type", "application/json")
	if ua := strings.TrimSpace(l.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", parseHTTPError(resp.StatusCode, payload)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, "", fmt.Errorf("decode page: %w", err)
	}

	var items []json.RawMessage
	if raw, ok := body[keyName]; ok {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, "", fmt.Errorf("decode %s array: %w", keyName, err)
		}
	}

	nextCursor := ""
	if raw, ok := body["cursor"]; ok {
		if err := json.Unmarshal(raw, &nextCursor); err != nil {
			return nil, "", fmt.Errorf("decode cursor: %w", err)
		}
	}

	return items, nextCursor, nil
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("loyverse api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("loyverse api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("loyverse api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("loyverse api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("loyverse api error (%d)", status)
}

var _ ShiftSource = (*Loyverse)(nil)
var _ ReceiptSource = (*Loyverse)(nil)
