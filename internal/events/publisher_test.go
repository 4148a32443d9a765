package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWebhookPublishSuccess(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Fatalf("Content-Type 不正确: %s", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhookPublisher(srv.URL, time.Second, zerolog.Nop())
	event := Event{
		Kind:      KindProductPurchased,
		Timestamp: time.Now().UTC(),
		Fields:    map[string]string{"receipt": "0xabc"},
	}
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("发布应成功: %v", err)
	}
	if received.Kind != KindProductPurchased {
		t.Fatalf("事件类型不正确: %s", received.Kind)
	}
	if received.Fields["receipt"] != "0xabc" {
		t.Fatalf("事件字段不正确: %#v", received.Fields)
	}
}

func TestWebhookPublishNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewWebhookPublisher(srv.URL, time.Second, zerolog.Nop())
	if err := p.Publish(context.Background(), Event{Kind: KindListingUpdated}); err == nil {
		t.Fatal("5xx 响应应报错")
	}
}

func TestWebhookPublishUnreachable(t *testing.T) {
	p := NewWebhookPublisher("http://127.0.0.1:1", time.Second, zerolog.Nop())
	if err := p.Publish(context.Background(), Event{Kind: KindListingDeactivated}); err == nil {
		t.Fatal("不可达地址应报错")
	}
}
