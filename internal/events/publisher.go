package events

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

// Kind 标识一次生命周期事件的类型。
type Kind string

const (
	KindListingInitialized Kind = "listing_initialized"
	KindListingUpdated     Kind = "listing_updated"
	KindListingDeactivated Kind = "listing_deactivated"
	KindProductPurchased   Kind = "product_purchased"
	KindSalesSummary       Kind = "sales_summary"
)

// Event 封装一次已提交操作的事件负载。
type Event struct {
	Kind      Kind              `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields"`
}

// Publisher 定义事件输送接口。发布是尽力而为的：事件失败不影响已提交的账本状态。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// WebhookPublisher 通过 HTTP POST 推送事件 JSON。
type WebhookPublisher struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookPublisher 构造 webhook 事件发布器。
func NewWebhookPublisher(url string, timeout time.Duration, logger zerolog.Logger) *WebhookPublisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookPublisher{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "event_webhook").Logger(),
	}
}

// Publish 序列化事件并 POST 到配置的地址。
func (p *WebhookPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send event request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 响应码异常: %d", resp.StatusCode)
	}

	p.logger.Info().
		Str("kind", string(event.Kind)).
		Time("timestamp", event.Timestamp).
		Msg("事件已发送 (webhook)")
	return nil
}

var _ Publisher = (*WebhookPublisher)(nil)
