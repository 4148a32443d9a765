package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"listing-ledger/internal/events"
	"listing-ledger/internal/ledger"
	"listing-ledger/internal/receipt"
	"listing-ledger/internal/scheduler"
)

type capturePublisher struct {
	published []events.Event
}

func (c *capturePublisher) Publish(_ context.Context, event events.Event) error {
	c.published = append(c.published, event)
	return nil
}

func TestProcessBucketPublishesSummary(t *testing.T) {
	receipts := receipt.NewMemoryStore()
	bucket := time.Now().UTC().Truncate(time.Minute)

	buyer := ledger.DeriveAddress([]byte("buyer"))
	product := ledger.DeriveAddress([]byte("product"))
	for i, paid := range []uint64{100, 250} {
		rec := receipt.New(buyer, product, ledger.DeriveAddress([]byte{byte(i)}), paid, bucket.Add(-time.Duration(i+1)*time.Second))
		if err := receipts.Record(context.Background(), rec); err != nil {
			t.Fatalf("写入回执失败: %v", err)
		}
	}

	capture := &capturePublisher{}
	sched := scheduler.New(scheduler.Options{Interval: time.Minute}, zerolog.Nop())
	mon := New(sched, receipts, capture, zerolog.Nop())

	if err := mon.ProcessBucket(context.Background(), bucket); err != nil {
		t.Fatalf("处理 bucket 不应报错: %v", err)
	}
	if len(capture.published) != 1 {
		t.Fatalf("应发布一条汇总事件, 实际 %d", len(capture.published))
	}

	event := capture.published[0]
	if event.Kind != events.KindSalesSummary {
		t.Fatalf("事件类型不正确: %s", event.Kind)
	}
	if event.Fields["sales"] != "2" || event.Fields["volume_native"] != "350" {
		t.Fatalf("汇总字段不正确: %#v", event.Fields)
	}
}

func TestProcessBucketEmptyWindow(t *testing.T) {
	capture := &capturePublisher{}
	sched := scheduler.New(scheduler.Options{Interval: time.Minute}, zerolog.Nop())
	mon := New(sched, receipt.NewMemoryStore(), capture, zerolog.Nop())

	if err := mon.ProcessBucket(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("空窗口不应报错: %v", err)
	}
	if len(capture.published) != 0 {
		t.Fatal("无销量时不应发布事件")
	}
}
