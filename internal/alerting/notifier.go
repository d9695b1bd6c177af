package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// FlaggedShift 描述告警 run 中的单个班次。
type FlaggedShift struct {
	ShiftID        string
	OpenedAt       time.Time
	Slot           string
	TotalSales     decimal.Decimal
	BaselineMean   decimal.Decimal
	SalesDiff      decimal.Decimal
	PerformancePct decimal.Decimal
	Reasons        []string
}

// Notification 封装单个门店的连续异常告警上下文。
type Notification struct {
	StoreName     string
	StoreID       string
	GeneratedAt   time.Time
	Shifts        []FlaggedShift
	WeeklyPct     decimal.Decimal
	HasWeeklyPct  bool
	Channels      []string
	AdditionalMsg string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("store", note.StoreName).
		Int("run_length", len(note.Shifts)).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Shift Dip Alert]\n")
	builder.WriteString(fmt.Sprintf("Store: %s\n", note.StoreName))
	builder.WriteString(fmt.Sprintf("Generated: %s UTC\n", note.GeneratedAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("%d consecutive shifts below baseline:\n", len(note.Shifts)))
	for _, shift := range note.Shifts {
		builder.WriteString(fmt.Sprintf(
			"  %s %s: sales %s (avg %s, %s%%)\n",
			shift.OpenedAt.Format("Mon, Jan 02 - 03:04 PM"),
			shift.Slot,
			shift.TotalSales.StringFixed(2),
			shift.BaselineMean.StringFixed(2),
			shift.PerformancePct.StringFixed(2),
		))
		if len(shift.Reasons) > 0 {
			builder.WriteString(fmt.Sprintf("    reasons: %s\n", strings.Join(shift.Reasons, "; ")))
		}
	}
	if note.HasWeeklyPct {
		builder.WriteString(fmt.Sprintf("Weekly sales vs baseline: %s%%\n", note.WeeklyPct.StringFixed(2)))
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
