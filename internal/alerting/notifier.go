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
)

const defaultTimeout = 10 * time.Second

// Notifier 定义告警输送接口。
type Notifier interface {
	// Name identifies the channel in logs and metrics.
	Name() string
	Notify(ctx context.Context, text string) error
}

// WebhookNotifier posts {"text": ...} to an incoming webhook.
// Slack and Mattermost both accept this payload.
type WebhookNotifier struct {
	name   string
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier 构造通用 webhook 告警器。
func NewWebhookNotifier(name, url string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &WebhookNotifier{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_"+name).Logger(),
	}
}

// NewSlackNotifier 构造 Slack 告警器。
func NewSlackNotifier(url string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	return NewWebhookNotifier("slack", url, timeout, logger)
}

// NewMattermostNotifier 构造 Mattermost 告警器。
func NewMattermostNotifier(url string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	return NewWebhookNotifier("mattermost", url, timeout, logger)
}

// Name implements Notifier.
func (n *WebhookNotifier) Name() string { return n.name }

// Notify 推送文本。
func (n *WebhookNotifier) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", n.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", n.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", n.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s 响应码异常: %d", n.name, resp.StatusCode)
	}

	n.logger.Debug().Msg("告警已发送")
	return nil
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
		timeout = defaultTimeout
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

// Name implements Notifier.
func (n *TelegramNotifier) Name() string { return "telegram" }

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    text,
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

	n.logger.Debug().Msg("告警已发送 (Telegram)")
	return nil
}

var (
	_ Notifier = (*WebhookNotifier)(nil)
	_ Notifier = (*TelegramNotifier)(nil)
)
