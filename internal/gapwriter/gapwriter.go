// Package gapwriter implements a non-blocking, bounded gap-persistence
// path: a bounded pending queue flushed on a timer, with a second bounded
// retry queue for batches the store rejected.
package gapwriter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"footprintd/internal/events"
)

// Config tunes queue sizes and flush timing.
type Config struct {
	MaxQueueSize      int
	MaxRetryQueueSize int
	BatchSize         int
	FlushInterval     time.Duration
	RetryInterval     time.Duration
	BatchMaxRetries   int
	BatchRetryDelays  []time.Duration
	FlushTimeout      time.Duration
}

// DefaultConfig returns sane defaults for queue sizes and flush timing.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:      1000,
		MaxRetryQueueSize: 500,
		BatchSize:         10,
		FlushInterval:     time.Second,
		RetryInterval:     5 * time.Second,
		BatchMaxRetries:   3,
		BatchRetryDelays:  []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond},
		FlushTimeout:      10 * time.Second,
	}
}

// BatchSaver persists a batch of gap records, atomically, the way
// gap_save_batch does over IPC. Returning an error means the whole batch
// is considered failed and eligible for retry.
type BatchSaver func(ctx context.Context, batch []events.GapRecord) error

// Metrics is a snapshot of the writer's counters.
type Metrics struct {
	QueueSize      int
	RetryQueueSize int
	ProcessedCount int64
	DroppedCount   int64
	FailedCount    int64
}

// Writer is the non-blocking gap writer. Submit never blocks: a full
// pending queue drops its oldest entry.
type Writer struct {
	cfg    Config
	saver  BatchSaver
	logger *zap.Logger

	mu         sync.Mutex
	pending    []events.GapRecord
	retryQueue []events.GapRecord

	processedCount int64
	droppedCount   int64
	failedCount    int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a Writer. Call Run to start its background timers.
func New(cfg Config, saver BatchSaver, logger *zap.Logger) *Writer {
	return &Writer{
		cfg:    cfg,
		saver:  saver,
		logger: logger.Named("gapwriter"),
		stop:   make(chan struct{}),
	}
}

// Submit enqueues one gap record. If the pending queue is full, the
// oldest entry is dropped and droppedCount increments — Submit itself
// never blocks and never returns an error, so a slow or unavailable
// store can never stall trade processing.
func (w *Writer) Submit(gap events.GapRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) >= w.cfg.MaxQueueSize {
		w.pending = w.pending[1:]
		w.droppedCount++
	}
	w.pending = append(w.pending, gap)
}

// Run starts the flush and retry-drain timers; it blocks until ctx is
// cancelled, at which point it performs a bounded flushAll before
// returning.
func (w *Writer) Run(ctx context.Context) {
	flushTicker := time.NewTicker(w.cfg.FlushInterval)
	defer flushTicker.Stop()
	retryTicker := time.NewTicker(w.cfg.RetryInterval)
	defer retryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.FlushAll(w.cfg.FlushTimeout)
			return
		case <-flushTicker.C:
			w.flushPending(ctx)
		case <-retryTicker.C:
			w.drainRetryQueue(ctx)
		}
	}
}

func (w *Writer) takeBatch(from *[]events.GapRecord) []events.GapRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.cfg.BatchSize
	if n > len(*from) {
		n = len(*from)
	}
	if n == 0 {
		return nil
	}
	batch := append([]events.GapRecord(nil), (*from)[:n]...)
	*from = (*from)[n:]
	return batch
}

func (w *Writer) flushPending(ctx context.Context) {
	batch := w.takeBatch(&w.pending)
	if len(batch) == 0 {
		return
	}
	if w.saveWithRetry(ctx, batch) {
		w.mu.Lock()
		w.processedCount += int64(len(batch))
		w.mu.Unlock()
		return
	}
	w.moveToRetryQueue(batch)
}

func (w *Writer) drainRetryQueue(ctx context.Context) {
	batch := w.takeBatch(&w.retryQueue)
	if len(batch) == 0 {
		return
	}
	if w.saveWithRetry(ctx, batch) {
		w.mu.Lock()
		w.processedCount += int64(len(batch))
		w.mu.Unlock()
		return
	}
	w.mu.Lock()
	w.failedCount += int64(len(batch))
	w.mu.Unlock()
}

// saveWithRetry attempts the batch, retrying in-place with the configured
// fixed delays before giving up.
func (w *Writer) saveWithRetry(ctx context.Context, batch []events.GapRecord) bool {
	delays := w.cfg.BatchRetryDelays
	if max := w.cfg.BatchMaxRetries; max > 0 && max < len(delays) {
		delays = delays[:max]
	}
	for attempt := 0; ; attempt++ {
		if err := w.saver(ctx, batch); err == nil {
			return true
		} else {
			w.logger.Warn("gap batch save failed", zap.Int("attempt", attempt), zap.Int("size", len(batch)), zap.Error(err))
		}
		if attempt >= len(delays) {
			return false
		}
		select {
		case <-time.After(delays[attempt]):
		case <-ctx.Done():
			return false
		}
	}
}

func (w *Writer) moveToRetryQueue(batch []events.GapRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, g := range batch {
		if len(w.retryQueue) >= w.cfg.MaxRetryQueueSize {
			w.retryQueue = w.retryQueue[1:]
			w.droppedCount++
		}
		w.retryQueue = append(w.retryQueue, g)
	}
}

// FlushAll drains both queues by repeatedly flushing until empty or
// timeout elapses, used during orchestrated shutdown.
func (w *Writer) FlushAll(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for time.Now().Before(deadline) {
		w.mu.Lock()
		empty := len(w.pending) == 0 && len(w.retryQueue) == 0
		w.mu.Unlock()
		if empty {
			return
		}
		w.flushPending(ctx)
		w.drainRetryQueue(ctx)
	}
	w.logger.Warn("flushAll hit deadline with records still queued", zap.Int("metrics_pending", len(w.pending)), zap.Int("metrics_retry", len(w.retryQueue)))
}

// Stats returns a snapshot of the writer's counters.
func (w *Writer) Stats() Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Metrics{
		QueueSize:      len(w.pending),
		RetryQueueSize: len(w.retryQueue),
		ProcessedCount: w.processedCount,
		DroppedCount:   w.droppedCount,
		FailedCount:    w.failedCount,
	}
}
