package gapwriter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"footprintd/internal/events"
)

func TestSubmitDropsOldestWhenQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 3
	w := New(cfg, func(ctx context.Context, batch []events.GapRecord) error { return nil }, zap.NewNop())

	for i := 0; i < 5; i++ {
		w.Submit(events.GapRecord{FromTradeID: int64(i)})
	}
	stats := w.Stats()
	if stats.QueueSize != 3 {
		t.Fatalf("expected queue capped at 3, got %d", stats.QueueSize)
	}
	if stats.DroppedCount != 2 {
		t.Fatalf("expected 2 dropped, got %d", stats.DroppedCount)
	}
}

func TestFlushPendingCallsSaverAndUpdatesProcessedCount(t *testing.T) {
	var mu sync.Mutex
	var saved []events.GapRecord
	saver := func(ctx context.Context, batch []events.GapRecord) error {
		mu.Lock()
		defer mu.Unlock()
		saved = append(saved, batch...)
		return nil
	}
	cfg := DefaultConfig()
	cfg.BatchSize = 10
	w := New(cfg, saver, zap.NewNop())
	for i := 0; i < 3; i++ {
		w.Submit(events.GapRecord{FromTradeID: int64(i)})
	}
	w.flushPending(context.Background())

	mu.Lock()
	n := len(saved)
	mu.Unlock()
	if n != 3 {
		t.Fatalf("expected 3 records saved, got %d", n)
	}
	if w.Stats().ProcessedCount != 3 {
		t.Fatalf("expected processedCount 3, got %d", w.Stats().ProcessedCount)
	}
}

func TestBatchMovesToRetryQueueAfterExhaustingRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.BatchRetryDelays = []time.Duration{time.Millisecond, time.Millisecond}
	cfg.BatchMaxRetries = 2
	saver := func(ctx context.Context, batch []events.GapRecord) error {
		return fmt.Errorf("persistence unavailable")
	}
	w := New(cfg, saver, zap.NewNop())
	w.Submit(events.GapRecord{FromTradeID: 1})
	w.Submit(events.GapRecord{FromTradeID: 2})

	w.flushPending(context.Background())

	stats := w.Stats()
	if stats.RetryQueueSize != 2 {
		t.Fatalf("expected 2 records in retry queue, got %d", stats.RetryQueueSize)
	}
	if stats.ProcessedCount != 0 {
		t.Fatalf("expected no processed records, got %d", stats.ProcessedCount)
	}
}

func TestFlushAllDrainsUnderTimeout(t *testing.T) {
	var mu sync.Mutex
	processed := 0
	saver := func(ctx context.Context, batch []events.GapRecord) error {
		mu.Lock()
		processed += len(batch)
		mu.Unlock()
		return nil
	}
	cfg := DefaultConfig()
	cfg.BatchSize = 5
	w := New(cfg, saver, zap.NewNop())
	for i := 0; i < 12; i++ {
		w.Submit(events.GapRecord{FromTradeID: int64(i)})
	}
	w.FlushAll(2 * time.Second)

	mu.Lock()
	n := processed
	mu.Unlock()
	if n != 12 {
		t.Fatalf("expected all 12 records flushed, got %d", n)
	}
	if stats := w.Stats(); stats.QueueSize != 0 || stats.RetryQueueSize != 0 {
		t.Fatalf("expected both queues empty after flushAll, got %+v", stats)
	}
}
