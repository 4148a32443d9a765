// Package monitor periodically summarizes sales activity over aligned
// time buckets and forwards notable buckets to the event publisher.
package monitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"listing-ledger/internal/events"
	"listing-ledger/internal/receipt"
	"listing-ledger/internal/scheduler"
)

// Monitor drives bucketed sales summaries off the scheduler.
type Monitor struct {
	sched    *scheduler.Scheduler
	receipts receipt.Store
	events   events.Publisher
	logger   zerolog.Logger

	interval time.Duration
}

// New constructs a Monitor instance.
func New(sched *scheduler.Scheduler, receipts receipt.Store, publisher events.Publisher, logger zerolog.Logger) *Monitor {
	return &Monitor{
		sched:    sched,
		receipts: receipts,
		events:   publisher,
		logger:   logger.With().Str("component", "monitor").Logger(),
		interval: sched.Interval(),
	}
}

// Run blocks until ctx is cancelled, summarizing each completed bucket.
func (m *Monitor) Run(ctx context.Context) error {
	return m.sched.Run(ctx, m.ProcessBucket)
}

// ProcessBucket summarizes the bucket that ended at the given boundary.
func (m *Monitor) ProcessBucket(ctx context.Context, bucket time.Time) error {
	to := bucket
	from := to.Add(-m.interval)

	receipts, err := m.receipts.ListBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list receipts for bucket %s: %w", from.Format(time.RFC3339), err)
	}

	var volume uint64
	for _, r := range receipts {
		volume += r.PricePaidNative
	}

	m.logger.Info().
		Time("from", from).
		Time("to", to).
		Int("sales", len(receipts)).
		Uint64("volume_native", volume).
		Msg("bucket summary")

	if len(receipts) == 0 || m.events == nil {
		return nil
	}

	event := events.Event{
		Kind:      events.KindSalesSummary,
		Timestamp: to,
		Fields: map[string]string{
			"from":          from.Format(time.RFC3339),
			"to":            to.Format(time.RFC3339),
			"sales":         strconv.Itoa(len(receipts)),
			"volume_native": strconv.FormatUint(volume, 10),
		},
	}
	if err := m.events.Publish(ctx, event); err != nil {
		m.logger.Error().Err(err).Msg("发送销量汇总事件失败")
	}
	return nil
}
