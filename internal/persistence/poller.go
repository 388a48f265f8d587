package persistence

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// QueueRouter dispatches one dequeued fallback message. Errors are logged
// by the poller but never stop the loop; a message that fails routing is
// still marked processed — there is no separate retry path here, unlike
// the gap writer's explicit retry queue.
type QueueRouter func(row QueueRow) error

// Poller drains the queue table on a fixed interval and prunes old
// processed rows.
type Poller struct {
	store         *Store
	router        QueueRouter
	batchSize     int
	pollInterval  time.Duration
	retention     time.Duration
	logger        *zap.Logger
}

// NewPoller builds a Poller. A nil router is valid — rows are then just
// marked processed without dispatch, which is enough to exercise the
// retention path in isolation.
func NewPoller(store *Store, router QueueRouter, batchSize int, pollInterval, retention time.Duration, zlog *zap.Logger) *Poller {
	if batchSize <= 0 {
		batchSize = 100
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Poller{
		store:        store,
		router:       router,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		retention:    retention,
		logger:       zlog.Named("queue-poller"),
	}
}

// Run blocks, polling and pruning until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	pollTicker := time.NewTicker(p.pollInterval)
	defer pollTicker.Stop()
	pruneTicker := time.NewTicker(p.retention / 4)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.pollOnce()
		case <-pruneTicker.C:
			p.pruneOnce()
		}
	}
}

func (p *Poller) pollOnce() {
	rows, err := p.store.PollUnprocessed(p.batchSize)
	if err != nil {
		p.logger.Error("poll failed", zap.Error(err))
		return
	}
	if len(rows) == 0 {
		return
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		if p.router != nil {
			if err := p.router(row); err != nil {
				p.logger.Warn("queue route handler failed", zap.Int64("id", row.ID), zap.Error(err))
			}
		}
		ids = append(ids, row.ID)
	}
	if err := p.store.MarkProcessed(ids); err != nil {
		p.logger.Error("mark processed failed", zap.Error(err))
	}
}

func (p *Poller) pruneOnce() {
	n, err := p.store.PruneProcessed(p.retention)
	if err != nil {
		p.logger.Error("prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Debug("pruned processed queue rows", zap.Int64("count", n))
	}
}
